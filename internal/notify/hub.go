// Package notify carries storeChanged broadcasts from the coordinator to
// review panels.
//
// Hub fans events out inside one process. RedisBridge announces new store
// versions to coordinators on other hosts, which then refresh from their
// own store and publish to their local Hub.
package notify

import (
	"sync"

	"github.com/ironsheep/snaptext/internal/record"
)

// Event is a storeChanged broadcast: the full committed list after a
// mutation. Receivers must treat Records as read-only.
type Event struct {
	Records []record.Record `json:"records"`
	Version int64           `json:"version"`
}

// Hub is an in-process publish/subscribe fan-out.
//
// Publish never blocks. A subscriber that falls behind loses its oldest
// pending event; since every event is a full snapshot, the latest one is
// all a receiver needs.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a receiver with the given buffer (minimum 1). The
// returned cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Event, buf)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber and returns how many there were.
// Zero subscribers is not an error.
func (h *Hub) Publish(ev Event) int {
	ev.Records = record.CloneAll(ev.Records)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
	return len(h.subs)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close unregisters and closes every subscriber. Later subscriptions get an
// already-closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
