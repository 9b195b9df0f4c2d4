package memory

import (
	"context"
	"sync"

	"pair-quiz-service/internal/domain"
)

// Hub is an in-process implementation of app.PairNotifier.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.PairView]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan domain.PairView]struct{}),
	}
}

func (h *Hub) Publish(_ context.Context, view domain.PairView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[view.ID] {
		Deliver(ch, view)
	}
}

func (h *Hub) Subscribe(_ context.Context, pairID string) (<-chan domain.PairView, func(), error) {
	ch := make(chan domain.PairView, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[pairID]
	if !ok {
		subs = make(map[chan domain.PairView]struct{})
		h.subscribers[pairID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[pairID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, pairID)
		}
	}
	return ch, cancel, nil
}

// Deliver sends view without blocking; when ch is full the oldest update is
// dropped so slow clients always end up with the latest state.
func Deliver(ch chan domain.PairView, view domain.PairView) {
	select {
	case ch <- view:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}
