package events

import (
	"context"
	"sync"

	"govsync/internal/ports"
)

// Hub fans events out to in-process subscribers such as websocket clients.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan ports.GovernanceEvent
	next int
}

var _ ports.EventPublisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan ports.GovernanceEvent)}
}

// Subscribe returns a channel closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan ports.GovernanceEvent {
	ch := make(chan ports.GovernanceEvent, 32)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

func (h *Hub) Publish(_ context.Context, event ports.GovernanceEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop.
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
