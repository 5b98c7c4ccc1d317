// Package realtime fans table change events out to connected portal clients.
package realtime

import (
	"sync"
	"time"
)

const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Event says a row changed. Clients refetch; the event carries no row data.
type Event struct {
	Seq       int64     `json:"seq"`
	Table     string    `json:"table"`
	Action    string    `json:"action"`
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	OwnerID   string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the write side used by services.
type Publisher interface {
	Publish(ev Event) Event
}

// Hub keeps a bounded replay history and a set of subscriber channels.
// A subscriber whose buffer is full is dropped and its channel closed.
type Hub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []Event
	subs    map[int]chan Event
	nextSub int
	now     func() time.Time
}

const subscriberBuffer = 128

func NewHub(limit int) *Hub {
	if limit < 1 {
		limit = 1
	}
	return &Hub{
		limit: limit,
		subs:  make(map[int]chan Event),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Publish stamps ev with the next sequence number and delivers it.
func (h *Hub) Publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	ev.Seq = h.nextSeq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now()
	}
	h.history = append(h.history, ev)
	if len(h.history) > h.limit {
		h.history = append([]Event(nil), h.history[len(h.history)-h.limit:]...)
	}

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
	return ev
}

// Subscribe returns retained events after fromSeq, a live channel, and a
// cancel func that is safe to call more than once.
func (h *Hub) Subscribe(fromSeq int64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]Event, 0)
	for _, ev := range h.history {
		if ev.Seq > fromSeq {
			replay = append(replay, ev)
		}
	}

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return replay, ch, cancel
}

// Subscribers reports the live subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Visible reports whether a viewer may see ev: admins see everything,
// customers only events on their own rows.
func Visible(ev Event, userID string, admin bool) bool {
	return admin || (ev.OwnerID != "" && ev.OwnerID == userID)
}
