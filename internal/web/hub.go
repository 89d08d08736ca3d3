// Package web serves the trader's status to a browser or terminal: latest snapshot, a
// server-sent event stream, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"sync"

	"livetrader-go/internal/status"
)

// Hub is the single consumer of a publisher channel. It keeps the latest snapshot and fans
// every snapshot out to stream subscribers; a subscriber that falls behind misses frames.
type Hub struct {
	mu      sync.RWMutex
	latest  status.Snapshot
	frame   []byte
	have    bool
	clients map[chan []byte]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub { return &Hub{clients: make(map[chan []byte]struct{})} }

// Consume reads snapshots until ctx ends or the channel closes.
func (h *Hub) Consume(ctx context.Context, snaps <-chan status.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			h.Update(s)
		}
	}
}

// Update stores s as the latest snapshot and broadcasts it.
func (h *Hub) Update(s status.Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest, h.frame, h.have = s, data, true
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// Latest returns the newest snapshot seen.
func (h *Hub) Latest() (status.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.have
}

// subscribe registers a stream client. The latest frame is queued first under the same
// lock as registration, so the client sees snapshots in publish order.
func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.have {
		ch <- h.frame
	}
	h.clients[ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Subscribers returns the number of connected stream clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
