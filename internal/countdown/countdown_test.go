package countdown

import (
	"math"
	"testing"
	"time"
)

// fakeClock lets tests jump the wall clock without real sleeps.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(c *fakeClock) *Tracker {
	return New(nil, WithClock(c.Now))
}

func TestTrackerIdle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock)
	defer tr.Stop()

	st := tr.Status()
	if st.State != Idle {
		t.Errorf("Expected Idle, got %v", st.State)
	}
	if st.RemainingS != 0 {
		t.Errorf("Expected 0 remaining while idle, got %d", st.RemainingS)
	}
}

func TestTrackerCountingAndDrift(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock)
	defer tr.Stop()

	st := tr.SetDeadline(clock.Now().Add(125 * time.Second))
	if st.State != Counting {
		t.Fatalf("Expected Counting, got %v", st.State)
	}
	if st.RemainingS != 125 {
		t.Errorf("Expected 125s remaining, got %d", st.RemainingS)
	}

	// One tick worth of elapsed time.
	clock.Advance(1 * time.Second)
	if got := tr.Status().RemainingS; got != 124 {
		t.Errorf("Expected 124s after 1s, got %d", got)
	}

	// A 50s scheduling pause, not 50 individual ticks: re-subtracting
	// from the stored deadline must not accumulate drift.
	clock.Advance(49 * time.Second)
	if got := tr.Status().RemainingS; got != 75 {
		t.Errorf("Expected 75s after pause jump, got %d", got)
	}
}

func TestTrackerExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock)
	defer tr.Stop()

	deadline := clock.Now().Add(10 * time.Second)
	tr.SetDeadline(deadline)

	clock.Advance(10 * time.Second)
	st := tr.Status()
	if st.State != Expired {
		t.Errorf("Expected Expired at deadline, got %v", st.State)
	}
	if st.RemainingS != 0 {
		t.Errorf("Expected 0 remaining, got %d", st.RemainingS)
	}

	// Remains Expired past the deadline, clamped to zero.
	clock.Advance(30 * time.Second)
	st = tr.Status()
	if st.State != Expired || st.RemainingS != 0 {
		t.Errorf("Expected Expired with 0 remaining, got %v / %d", st.State, st.RemainingS)
	}

	// A new, later deadline transitions back to Counting.
	st = tr.SetDeadline(clock.Now().Add(900 * time.Second))
	if st.State != Counting {
		t.Errorf("Expected Counting after new deadline, got %v", st.State)
	}

	// Clearing returns to Idle.
	tr.Clear()
	if st := tr.Status(); st.State != Idle {
		t.Errorf("Expected Idle after clear, got %v", st.State)
	}
}

func TestTrackerSameDeadlineNoop(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock)
	defer tr.Stop()

	deadline := clock.Now().Add(300 * time.Second)
	tr.SetDeadline(deadline)
	clock.Advance(5 * time.Second)

	st := tr.SetDeadline(deadline)
	if st.RemainingS != 295 {
		t.Errorf("Expected 295s remaining, got %d", st.RemainingS)
	}
}

func TestProgress(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock)
	defer tr.Stop()

	tr.SetDeadline(clock.Now().Add(900 * time.Second))

	if got := tr.Status().ProgressPct; got != 0 {
		t.Errorf("Expected 0%% progress at full duration, got %f", got)
	}

	// Monotonically non-decreasing as remaining decreases.
	prev := -1.0
	for i := 0; i < 18; i++ {
		clock.Advance(50 * time.Second)
		got := tr.Status().ProgressPct
		if got < prev {
			t.Fatalf("Progress decreased from %f to %f", prev, got)
		}
		prev = got
	}

	if got := tr.Status().ProgressPct; got != 100 {
		t.Errorf("Expected 100%% progress at expiry, got %f", got)
	}
}

func TestThresholds(t *testing.T) {
	tests := []struct {
		name    string
		secs    int
		warning bool
		urgent  bool
	}{
		{"plenty of time", 500, false, false},
		{"warning boundary", 180, true, false},
		{"between thresholds", 90, true, false},
		{"urgent boundary", 60, true, true},
		{"final seconds", 5, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
			tr := newTestTracker(clock)
			defer tr.Stop()

			st := tr.SetDeadline(clock.Now().Add(time.Duration(tt.secs) * time.Second))
			if st.Warning != tt.warning {
				t.Errorf("Expected warning=%v at %ds", tt.warning, tt.secs)
			}
			if st.Urgent != tt.urgent {
				t.Errorf("Expected urgent=%v at %ds", tt.urgent, tt.secs)
			}
		})
	}
}

func TestTrackerTicks(t *testing.T) {
	ticks := make(chan Status, 64)
	tr := New(func(st Status) {
		select {
		case ticks <- st:
		default:
		}
	}, WithTickInterval(5*time.Millisecond))
	defer tr.Stop()

	tr.SetDeadline(time.Now().Add(2 * time.Minute))

	select {
	case st := <-ticks:
		if st.State != Counting {
			t.Errorf("Expected Counting tick, got %v", st.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a tick within 2s")
	}

	// Clearing the deadline stops the tick loop. Let any in-flight tick
	// land before asserting silence.
	tr.Clear()
	time.Sleep(20 * time.Millisecond)
	for {
		select {
		case <-ticks:
			continue
		default:
		}
		break
	}
	select {
	case <-ticks:
		t.Error("Expected no ticks after clear")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStrikeProximity(t *testing.T) {
	tests := []struct {
		name    string
		price   float64
		strike  float64
		defined bool
		wantPct float64
		side    string
	}{
		{"at strike", 97500, 97500, true, 50, "yes"},
		{"above strike", 97750, 97500, true, 75, "yes"},
		{"below strike", 97250, 97500, true, 25, "no"},
		{"clamped high", 98200, 97500, true, 100, "yes"},
		{"clamped low", 96800, 97500, true, 0, "no"},
		{"exactly +500", 98000, 97500, true, 100, "yes"},
		{"exactly -500", 97000, 97500, true, 0, "no"},
		{"no strike", 97500, 0, false, 50, ""},
		{"no price", 0, 97500, false, 50, ""},
		{"negative price", -1, 97500, false, 50, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := StrikeProximity(tt.price, tt.strike)
			if p.Defined != tt.defined {
				t.Errorf("Expected defined=%v, got %v", tt.defined, p.Defined)
			}
			if math.Abs(p.PositionPct-tt.wantPct) > 1e-9 {
				t.Errorf("Expected position %f%%, got %f%%", tt.wantPct, p.PositionPct)
			}
			if p.Side != tt.side {
				t.Errorf("Expected side %q, got %q", tt.side, p.Side)
			}
		})
	}
}
