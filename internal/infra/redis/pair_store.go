package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pair-quiz-service/internal/domain"
)

const maxTxRetries = 16

// ErrContention is returned when an optimistic update keeps losing against concurrent writers.
var ErrContention = errors.New("pair update aborted after repeated conflicts")

// PairStore is a Redis implementation of app.PairRepository.
// Notes:
//   - Each pair is one JSON document; Update is an optimistic WATCH/MULTI
//     transaction on that key, retried when another writer wins.
//   - Secondary indexes (pending queue, expiring deadlines, user -> live pair)
//     are rewritten in the same MULTI block as the document.
//   - Finished pairs are kept for retention and then expire.
type PairStore struct {
	client    *redis.Client
	retention time.Duration
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func NewPairStore(client *redis.Client, retention time.Duration) *PairStore {
	return &PairStore{client: client, retention: retention}
}

func (s *PairStore) Create(ctx context.Context, pair *domain.Pair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("marshal pair: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, pairKey(pair.ID), data, 0)
		s.queueIndexes(ctx, pipe, pair)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create pair %s: %w", pair.ID, err)
	}
	return nil
}

func (s *PairStore) Get(ctx context.Context, id string) (*domain.Pair, error) {
	return s.load(ctx, s.client, id)
}

func (s *PairStore) FindLiveByUser(ctx context.Context, userID string) (*domain.Pair, error) {
	id, err := s.client.Get(ctx, liveUserKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrPairNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find live pair: %w", err)
	}
	pair, err := s.load(ctx, s.client, id)
	if err != nil {
		return nil, err
	}
	if !pair.IsLive() || !pair.HasUser(userID) {
		return nil, domain.ErrPairNotFound
	}
	return pair, nil
}

func (s *PairStore) ListPending(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.client.ZRange(ctx, pendingPairsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending pairs: %w", err)
	}
	return ids, nil
}

func (s *PairStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, expiringPairsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired pairs: %w", err)
	}
	return ids, nil
}

func (s *PairStore) Update(ctx context.Context, id string, fn func(*domain.Pair) error) (*domain.Pair, error) {
	key := pairKey(id)
	var updated *domain.Pair

	txf := func(tx *redis.Tx) error {
		pair, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(pair); err != nil {
			return err
		}
		data, err := json.Marshal(pair)
		if err != nil {
			return fmt.Errorf("marshal pair: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			s.queueIndexes(ctx, pipe, pair)
			return nil
		})
		if err == nil {
			updated = pair
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update pair %s: %w", id, ErrContention)
}

func (s *PairStore) load(ctx context.Context, c getter, id string) (*domain.Pair, error) {
	raw, err := c.Get(ctx, pairKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrPairNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pair %s: %w", id, err)
	}
	var pair domain.Pair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("unmarshal pair %s: %w", id, err)
	}
	return &pair, nil
}

func (s *PairStore) queueIndexes(ctx context.Context, pipe redis.Pipeliner, pair *domain.Pair) {
	switch pair.Status {
	case domain.StatusPendingSecondPlayer:
		pipe.ZAdd(ctx, pendingPairsKey, redis.Z{
			Score:  float64(pair.PairCreatedDate.UnixMilli()),
			Member: pair.ID,
		})
	case domain.StatusActive:
		pipe.ZRem(ctx, pendingPairsKey, pair.ID)
		if pair.FinishingExpirationDate != nil {
			pipe.ZAdd(ctx, expiringPairsKey, redis.Z{
				Score:  float64(pair.FinishingExpirationDate.UnixMilli()),
				Member: pair.ID,
			})
		}
	case domain.StatusFinished:
		pipe.ZRem(ctx, pendingPairsKey, pair.ID)
		pipe.ZRem(ctx, expiringPairsKey, pair.ID)
		for _, player := range pair.Players() {
			pipe.Del(ctx, liveUserKey(player.UserID))
		}
		if s.retention > 0 {
			pipe.Expire(ctx, pairKey(pair.ID), s.retention)
		}
		return
	}

	for _, player := range pair.Players() {
		pipe.Set(ctx, liveUserKey(player.UserID), pair.ID, 0)
	}
}
