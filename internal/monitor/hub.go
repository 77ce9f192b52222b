package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"birdnest/internal/metrics"
	"birdnest/internal/violation"
)

// Update reports a change to one violation record. A nil Violation means the
// record expired and was removed.
type Update struct {
	Serial    string               `json:"serial"`
	Violation *violation.Violation `json:"data"`
}

// DefaultSubscriberBuffer is used when Subscribe is called with a buffer < 1.
const DefaultSubscriberBuffer = 64

type subscriber struct {
	ch      chan Update
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Hub fans updates out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the update.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

// HubStats summarises delivery across all current subscribers.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

// Subscribe registers a new subscriber and returns its id and channel. The
// channel is closed by Unsubscribe.
func (h *Hub) Subscribe(buffer int) (string, <-chan Update) {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	id := uuid.NewString()
	s := &subscriber{ch: make(chan Update, buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = s
	return id, s.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(h.subs, id)
	close(s.ch)
	return true
}

// Publish delivers u to every subscriber. Each subscriber gets its own copy
// of the record.
func (h *Hub) Publish(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		out := Update{Serial: u.Serial}
		if u.Violation != nil {
			v := u.Violation.Clone()
			out.Violation = &v
		}
		select {
		case s.ch <- out:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
			metrics.EventsDropped.Inc()
		}
	}
}

// Stats returns delivery counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := HubStats{Subscribers: len(h.subs)}
	for _, s := range h.subs {
		st.Sent += s.sent.Load()
		st.Dropped += s.dropped.Load()
	}
	return st
}
