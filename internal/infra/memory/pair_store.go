package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pair-quiz-service/internal/domain"
)

// PairStore is an in-memory implementation of app.PairRepository.
// Each pair has its own mutex so independent pairs never contend.
//
// Finished pairs stay readable by id; the live, pending and expiring
// indexes only ever hold pairs that can still change, so lookups and
// sweeps do not grow with game history.
type PairStore struct {
	mu       sync.RWMutex
	pairs    map[string]*pairEntry
	live     map[string]string    // user id -> live pair id
	pending  map[string]time.Time // pair id -> created at
	expiring map[string]time.Time // pair id -> finishing deadline
}

type pairEntry struct {
	mu   sync.Mutex
	pair *domain.Pair
}

func NewPairStore() *PairStore {
	return &PairStore{
		pairs:    make(map[string]*pairEntry),
		live:     make(map[string]string),
		pending:  make(map[string]time.Time),
		expiring: make(map[string]time.Time),
	}
}

func (s *PairStore) Create(_ context.Context, pair *domain.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[pair.ID]; ok {
		return fmt.Errorf("pair %s already exists", pair.ID)
	}
	s.pairs[pair.ID] = &pairEntry{pair: pair.Clone()}
	s.reindex(pair)
	return nil
}

func (s *PairStore) Get(_ context.Context, id string) (*domain.Pair, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, domain.ErrPairNotFound
	}
	return entry.snapshot(), nil
}

func (s *PairStore) FindLiveByUser(_ context.Context, userID string) (*domain.Pair, error) {
	s.mu.RLock()
	id, ok := s.live[userID]
	entry := s.pairs[id]
	s.mu.RUnlock()
	if !ok || entry == nil {
		return nil, domain.ErrPairNotFound
	}
	// The index may trail a commit that is still in flight.
	pair := entry.snapshot()
	if !pair.IsLive() || !pair.HasUser(userID) {
		return nil, domain.ErrPairNotFound
	}
	return pair, nil
}

func (s *PairStore) ListPending(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	pending := make([]indexed, 0, len(s.pending))
	for id, at := range s.pending {
		pending = append(pending, indexed{id: id, at: at})
	}
	s.mu.RUnlock()
	return oldestFirst(pending, limit), nil
}

func (s *PairStore) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	var expired []indexed
	for id, deadline := range s.expiring {
		if !deadline.After(now) {
			expired = append(expired, indexed{id: id, at: deadline})
		}
	}
	s.mu.RUnlock()
	return oldestFirst(expired, limit), nil
}

// Update mutates a private copy and swaps it in only when fn succeeds.
func (s *PairStore) Update(_ context.Context, id string, fn func(*domain.Pair) error) (*domain.Pair, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, domain.ErrPairNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := entry.pair.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	entry.pair = working

	// Lock order is entry.mu then s.mu; readers never hold s.mu while
	// taking an entry lock.
	s.mu.Lock()
	s.reindex(working)
	s.mu.Unlock()
	return working.Clone(), nil
}

// reindex must be called with s.mu held.
func (s *PairStore) reindex(p *domain.Pair) {
	for _, player := range p.Players() {
		switch {
		case p.IsLive():
			s.live[player.UserID] = p.ID
		case s.live[player.UserID] == p.ID:
			delete(s.live, player.UserID)
		}
	}

	if p.Status == domain.StatusPendingSecondPlayer {
		s.pending[p.ID] = p.PairCreatedDate
	} else {
		delete(s.pending, p.ID)
	}

	if p.Status == domain.StatusActive && p.FinishingExpirationDate != nil {
		s.expiring[p.ID] = *p.FinishingExpirationDate
	} else {
		delete(s.expiring, p.ID)
	}
}

func (s *PairStore) entry(id string) (*pairEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.pairs[id]
	return entry, ok
}

func (e *pairEntry) snapshot() *domain.Pair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pair.Clone()
}

type indexed struct {
	id string
	at time.Time
}

func oldestFirst(items []indexed, limit int) []string {
	sort.Slice(items, func(i, j int) bool {
		if items[i].at.Equal(items[j].at) {
			return items[i].id < items[j].id
		}
		return items[i].at.Before(items[j].at)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.id)
	}
	return ids
}
