// Package eventstream implements an ordered, replayable publish/subscribe
// hub for scan events. Subscribers may detach and reattach without losing
// lines still inside the bounded retention window, and publishing never
// blocks on a slow consumer.
package eventstream

import (
	"sync"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// DefaultRetention is the number of events kept for replay to late or
// reattaching subscribers.
const DefaultRetention = 256

// subscriberHeadroom is extra channel capacity beyond the replay window so a
// live subscriber does not lag immediately after replay.
const subscriberHeadroom = 64

// Hub fans events out to subscribers in publish order. All methods are safe
// for concurrent use.
type Hub struct {
	mu        sync.Mutex
	retention int
	ring      []scantypes.Event
	start     int
	count     int
	subs      map[*Subscription]struct{}
	closed    bool
}

// NewHub creates a hub retaining up to retention events for replay.
// Non-positive retention selects DefaultRetention.
func NewHub(retention int) *Hub {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Hub{
		retention: retention,
		ring:      make([]scantypes.Event, retention),
		subs:      make(map[*Subscription]struct{}),
	}
}

// Publish appends an event to the retention window and delivers it to every
// live subscriber. Publishing to a closed hub is a no-op. A subscriber whose
// buffer is full misses the event and is marked lagged; delivery order for
// the events it does receive is preserved.
func (h *Hub) Publish(ev scantypes.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	if h.count == len(h.ring) {
		h.ring[h.start] = ev
		h.start = (h.start + 1) % len(h.ring)
	} else {
		h.ring[(h.start+h.count)%len(h.ring)] = ev
		h.count++
	}

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.lagged = true
		}
	}
}

// Subscribe attaches a new subscriber. Retained events are replayed into the
// subscription buffer before any live event, so replay and live delivery
// never interleave out of order. Subscribing to a closed hub returns a
// subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		hub: h,
		ch:  make(chan scantypes.Event, h.retention+subscriberHeadroom),
	}
	for i := 0; i < h.count; i++ {
		sub.ch <- h.ring[(h.start+i)%len(h.ring)]
	}
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Close detaches all subscribers and closes their channels after any events
// already delivered. Close is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

// Subscription is one attachment to a hub.
type Subscription struct {
	hub    *Hub
	ch     chan scantypes.Event
	lagged bool
}

// Events returns the subscription's event channel. The channel is closed
// when the subscription is cancelled or the hub closes.
func (s *Subscription) Events() <-chan scantypes.Event {
	return s.ch
}

// Lagged reports whether the subscriber missed events due to a full buffer.
func (s *Subscription) Lagged() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.lagged
}

// Cancel detaches the subscription. Safe to call multiple times; cancelling
// after the hub closed is a no-op.
func (s *Subscription) Cancel() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if _, ok := s.hub.subs[s]; !ok {
		return
	}
	delete(s.hub.subs, s)
	close(s.ch)
}
