// Package countdown tracks the time remaining to a contract close and the
// live price's position relative to the strike.
package countdown

import (
	"sync"
	"time"
)

// ContractDuration is the fixed length of one 15-minute binary contract.
const ContractDuration = 900 * time.Second

// Visual thresholds derived from remaining time. Presentation hints, not
// separate states.
const (
	WarningThreshold = 180 * time.Second
	UrgentThreshold  = 60 * time.Second
)

// proximityRange is the fixed ±range, in underlying price units, mapped
// onto the 0-100% strike proximity scale.
const proximityRange = 500.0

// State of the tracker.
type State int

const (
	// Idle means no deadline is known.
	Idle State = iota
	// Counting means a deadline is set and time remains.
	Counting
	// Expired means the deadline passed; the tracker stays here until a
	// new, later deadline arrives or the deadline is cleared.
	Expired
)

func (s State) String() string {
	switch s {
	case Counting:
		return "counting"
	case Expired:
		return "expired"
	default:
		return "idle"
	}
}

// Status is one derived countdown reading.
type Status struct {
	State       State         `json:"-"`
	StateName   string        `json:"state"`
	Deadline    int64         `json:"deadline"` // unix seconds, 0 when idle
	Remaining   time.Duration `json:"-"`
	RemainingS  int           `json:"remaining_s"`
	ProgressPct float64       `json:"progress_pct"`
	Warning     bool          `json:"warning"`
	Urgent      bool          `json:"urgent"`
}

// Tracker re-derives the remaining time from a stored absolute deadline on
// every tick, never by decrementing a counter, so missed or delayed ticks
// cannot accumulate drift. The tick loop stops whenever the deadline is
// cleared and on Stop.
type Tracker struct {
	mu       sync.Mutex
	deadline time.Time
	duration time.Duration
	now      func() time.Time

	tick   time.Duration
	stop   chan struct{}
	onTick func(Status)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithTickInterval overrides the 1 s re-derivation interval.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tracker) { t.tick = d }
}

// New creates a tracker in the Idle state. onTick receives a fresh Status
// once per tick interval while a deadline is set; it may be nil.
func New(onTick func(Status), opts ...Option) *Tracker {
	t := &Tracker{
		duration: ContractDuration,
		now:      time.Now,
		tick:     time.Second,
		onTick:   onTick,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetDeadline stores a new absolute deadline and immediately re-derives.
// A zero deadline clears the tracker back to Idle and stops ticking.
// Setting the same deadline again is a no-op so the periodic snapshot
// poll does not restart the tick loop every cycle.
func (t *Tracker) SetDeadline(deadline time.Time) Status {
	t.mu.Lock()
	if deadline.Equal(t.deadline) {
		st := t.statusLocked()
		t.mu.Unlock()
		return st
	}

	t.stopLocked()
	t.deadline = deadline
	st := t.statusLocked()

	if !deadline.IsZero() {
		stop := make(chan struct{})
		t.stop = stop
		go t.run(stop)
	}
	t.mu.Unlock()
	return st
}

// Clear drops the deadline and stops ticking.
func (t *Tracker) Clear() {
	t.SetDeadline(time.Time{})
}

// Stop cancels the tick loop. Always called on teardown to avoid leaking
// timers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopLocked()
	t.mu.Unlock()
}

func (t *Tracker) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Tracker) run(stop chan struct{}) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st := t.Status()
			if t.onTick != nil {
				t.onTick(st)
			}
		}
	}
}

// Status re-derives the current reading from the stored deadline.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) statusLocked() Status {
	if t.deadline.IsZero() {
		return Status{State: Idle, StateName: Idle.String()}
	}

	remaining := t.deadline.Sub(t.now())
	if remaining < 0 {
		remaining = 0
	}

	state := Counting
	if remaining == 0 {
		state = Expired
	}

	elapsed := t.duration - remaining
	progress := clamp(float64(elapsed)/float64(t.duration)*100, 0, 100)

	return Status{
		State:       state,
		StateName:   state.String(),
		Deadline:    t.deadline.Unix(),
		Remaining:   remaining,
		RemainingS:  int(remaining / time.Second),
		ProgressPct: progress,
		Warning:     remaining <= WarningThreshold,
		Urgent:      remaining <= UrgentThreshold,
	}
}

// Proximity is the live price's normalized position against the strike.
type Proximity struct {
	Defined     bool    `json:"defined"`
	Diff        float64 `json:"diff"`
	PositionPct float64 `json:"position_pct"`
	Side        string  `json:"side"` // favored side: "yes" above strike, "no" below
}

// StrikeProximity maps price − strike onto a fixed ±500-unit range:
// 50% at the strike, clamped to 0 and 100 at ±500. Undefined (neutral
// midpoint) when price or strike is absent or non-positive.
func StrikeProximity(price, strike float64) Proximity {
	if price <= 0 || strike <= 0 {
		return Proximity{PositionPct: 50}
	}
	diff := price - strike
	side := "no"
	if diff >= 0 {
		side = "yes"
	}
	return Proximity{
		Defined:     true,
		Diff:        diff,
		PositionPct: clamp(50+diff/proximityRange*50, 0, 100),
		Side:        side,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
