package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"pair-quiz-service/internal/domain"
	"pair-quiz-service/internal/infra/memory"
)

// Hub fans pair updates out through Redis pub/sub so every instance sees
// updates produced by any other instance.
type Hub struct {
	client *redis.Client
}

func NewHub(client *redis.Client) *Hub {
	return &Hub{client: client}
}

func (h *Hub) Publish(ctx context.Context, view domain.PairView) {
	data, err := json.Marshal(view)
	if err != nil {
		log.Printf("[hub] marshal pair %s: %v", view.ID, err)
		return
	}
	if err := h.client.Publish(ctx, pairUpdatesChannel(view.ID), data).Err(); err != nil {
		log.Printf("[hub] publish pair %s: %v", view.ID, err)
	}
}

func (h *Hub) Subscribe(ctx context.Context, pairID string) (<-chan domain.PairView, func(), error) {
	pubsub := h.client.Subscribe(ctx, pairUpdatesChannel(pairID))
	// Wait for the subscription to be confirmed so no update published afterwards is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.PairView, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var view domain.PairView
				if err := json.Unmarshal([]byte(msg.Payload), &view); err != nil {
					log.Printf("[hub] decode update for pair %s: %v", pairID, err)
					continue
				}
				memory.Deliver(out, view)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}
