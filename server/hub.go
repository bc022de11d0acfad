// Package server carries the event protocol between the orchestration
// core and a UI. The same line-delimited JSON vocabulary is served over
// stdio, a socket listener, or both at once.
package server

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/martinemde/deskagent/agent"
)

// Hub fans the core's event stream out to every connected client. A
// client that stops draining has events dropped rather than stalling the
// core or its peers.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[chan []byte]struct{}),
		logger:  logger,
	}
}

// Run drains the emitter and broadcasts each event as one JSON line.
// Returns when the event channel closes or ctx is cancelled.
func (h *Hub) Run(ctx context.Context, events <-chan agent.Event) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				h.closeAll()
				return
			}
			line, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("unmarshalable event", zap.String("event_type", ev.Type), zap.Error(err))
				continue
			}
			h.broadcast(line)
		}
	}
}

func (h *Hub) broadcast(line []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- line:
		default:
			h.logger.Warn("dropping event for slow client")
		}
	}
}

// Subscribe registers a client and returns its event channel plus an
// unsubscribe function.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
