// Package dashboard owns the latest backend inputs and recomputes the
// display-ready view model on every change. Derived state is rebuilt from
// scratch each time; previous output is never mutated in place.
package dashboard

import (
	"sync"
	"time"

	"github.com/rewired-gh/kalshideck/internal/countdown"
	"github.com/rewired-gh/kalshideck/internal/models"
	"github.com/rewired-gh/kalshideck/internal/view"
)

// Hub holds the latest feed and snapshot and fans freshly derived view
// models out to subscribers. All mutation goes through the hub's lock;
// subscribers only ever see complete models.
type Hub struct {
	mu      sync.RWMutex
	feed    *models.TradeFeed
	snap    *models.StatusSnapshot
	current *view.Model
	now     func() time.Time

	tracker     *countdown.Tracker
	trackerOpts []countdown.Option

	nextID      int
	subscribers map[int]chan *view.Model
	configSubs  map[int]chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock overrides the wall clock for both the hub and its countdown
// tracker. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		h.now = now
		h.trackerOpts = append(h.trackerOpts, countdown.WithClock(now))
	}
}

// WithTrackerOptions forwards options to the countdown tracker.
func WithTrackerOptions(opts ...countdown.Option) Option {
	return func(h *Hub) { h.trackerOpts = append(h.trackerOpts, opts...) }
}

// New creates an empty hub. Close must be called on teardown.
func New(opts ...Option) *Hub {
	h := &Hub{
		now:         time.Now,
		subscribers: make(map[int]chan *view.Model),
		configSubs:  make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.tracker = countdown.New(h.onTick, h.trackerOpts...)
	h.recompute()
	return h
}

// Close stops the countdown tracker and releases all subscribers.
func (h *Hub) Close() {
	h.tracker.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	for id, ch := range h.configSubs {
		close(ch)
		delete(h.configSubs, id)
	}
}

// UpdateFeed replaces the trade feed and recomputes.
func (h *Hub) UpdateFeed(feed *models.TradeFeed) {
	h.mu.Lock()
	h.feed = feed
	h.mu.Unlock()
	h.recompute()
}

// UpdateSnapshot replaces the status snapshot, re-arms the countdown from
// the snapshot's contract close time, and recomputes. A zero close time
// clears the countdown.
func (h *Hub) UpdateSnapshot(snap *models.StatusSnapshot) {
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()

	if snap != nil && snap.CloseTS > 0 {
		h.tracker.SetDeadline(time.Unix(snap.CloseTS, 0))
	} else {
		h.tracker.Clear()
	}
	h.recompute()
}

// Current returns the most recently derived view model.
func (h *Hub) Current() *view.Model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Feed returns the latest raw trade feed, nil before the first poll.
func (h *Hub) Feed() *models.TradeFeed {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.feed
}

// Snapshot returns the latest raw status snapshot, nil before the first
// poll.
func (h *Hub) Snapshot() *models.StatusSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

// Subscribe registers for view model updates. The channel holds only the
// latest model: a slow consumer sees the freshest state, not a backlog.
// The returned cancel func must be called to release the subscription.
func (h *Hub) Subscribe() (<-chan *view.Model, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan *view.Model, 1)
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if ch, ok := h.subscribers[id]; ok {
			close(ch)
			delete(h.subscribers, id)
		}
	}
	return ch, cancel
}

// SubscribeConfig registers for config-change signals, the decoupled
// channel between the settings-mutation path and any view that renders
// configuration.
func (h *Hub) SubscribeConfig() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan struct{}, 1)
	h.configSubs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if ch, ok := h.configSubs[id]; ok {
			close(ch)
			delete(h.configSubs, id)
		}
	}
	return ch, cancel
}

// PublishConfigChanged signals that configuration was mutated outside the
// render path.
func (h *Hub) PublishConfigChanged() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.configSubs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) onTick(countdown.Status) {
	h.recompute()
}

// recompute derives a fresh view model from the latest inputs and fans it
// out, replacing any undelivered previous model per subscriber.
func (h *Hub) recompute() {
	cd := h.tracker.Status()

	h.mu.Lock()
	model := view.Derive(h.feed, h.snap, cd, h.now())
	h.current = model

	for _, ch := range h.subscribers {
		select {
		case ch <- model:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- model:
			default:
			}
		}
	}
	h.mu.Unlock()
}
