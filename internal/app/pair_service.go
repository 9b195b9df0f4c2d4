package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"pair-quiz-service/internal/domain"
)

// maxClaimAttempts bounds how many waiting pairs a connect tries before opening its own.
const maxClaimAttempts = 3

// PairService contains the pair-quiz use cases: matchmaking, answering and lookups.
type PairService struct {
	pairs    PairRepository
	assigner QuestionAssigner
	locks    UserLocker
	notifier PairNotifier
	grace    time.Duration
	now      func() time.Time
	newID    func() string
}

func NewPairService(pairs PairRepository, assigner QuestionAssigner, locks UserLocker, notifier PairNotifier, grace time.Duration) *PairService {
	if grace <= 0 {
		grace = domain.DefaultGracePeriod
	}
	return &PairService{
		pairs:    pairs,
		assigner: assigner,
		locks:    locks,
		notifier: notifier,
		grace:    grace,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock swaps the time source; used by tests for deterministic deadlines.
func (s *PairService) WithClock(now func() time.Time) *PairService {
	s.now = now
	return s
}

// Connect joins the oldest waiting pair or opens a new one for userID.
func (s *PairService) Connect(ctx context.Context, userID string) (domain.PairView, error) {
	if userID == "" {
		return domain.PairView{}, domain.ErrUnauthenticated
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return domain.PairView{}, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	_, err = s.livePair(ctx, userID)
	switch {
	case err == nil:
		return domain.PairView{}, domain.ErrAlreadyInGame
	case !errors.Is(err, domain.ErrPairNotFound):
		return domain.PairView{}, err
	}

	pending, err := s.pairs.ListPending(ctx, maxClaimAttempts)
	if err != nil {
		return domain.PairView{}, err
	}
	if len(pending) > 0 {
		questions, err := s.assigner.Assign(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientQuestions) {
				log.Printf("[matchmaker] ALERT cannot start pair: %v", err)
			}
			return domain.PairView{}, err
		}
		for _, id := range pending {
			pair, err := s.pairs.Update(ctx, id, func(p *domain.Pair) error {
				if p.HasUser(userID) {
					return domain.ErrPairTaken
				}
				return p.Activate(domain.Player{ID: s.newID(), UserID: userID}, questions, s.now())
			})
			if errors.Is(err, domain.ErrPairTaken) || errors.Is(err, domain.ErrPairNotFound) {
				continue
			}
			if err != nil {
				return domain.PairView{}, err
			}
			view := pair.View()
			s.publish(ctx, view)
			return view, nil
		}
	}

	pair := domain.NewPendingPair(s.newID(), domain.Player{ID: s.newID(), UserID: userID}, s.now())
	if err := s.pairs.Create(ctx, pair); err != nil {
		return domain.PairView{}, err
	}
	return pair.View(), nil
}

// SubmitAnswer records the next answer of userID in their active pair.
func (s *PairService) SubmitAnswer(ctx context.Context, userID, text string) (domain.AnswerResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.AnswerResult{}, domain.ErrInvalidAnswer
	}

	current, err := s.livePair(ctx, userID)
	if errors.Is(err, domain.ErrPairNotFound) {
		return domain.AnswerResult{}, domain.ErrNoActiveGame
	}
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if current.Status != domain.StatusActive {
		return domain.AnswerResult{}, domain.ErrNoActiveGame
	}

	var (
		result  domain.AnswerResult
		expired bool
	)
	pair, err := s.pairs.Update(ctx, current.ID, func(p *domain.Pair) error {
		at := s.now()
		// The deadline may pass between lookup and lock; close the pair instead of scoring.
		expired = p.FinalizeIfExpired(at)
		if expired {
			return nil
		}
		r, err := p.RecordAnswer(userID, text, at, s.grace)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if errors.Is(err, domain.ErrPairNotFound) {
		return domain.AnswerResult{}, domain.ErrNoActiveGame
	}
	if err != nil {
		return domain.AnswerResult{}, err
	}

	if expired {
		log.Printf("[answers] pair %s finalized past its deadline, answer of %s rejected", pair.ID, userID)
		s.publish(ctx, pair.View())
		return domain.AnswerResult{}, domain.ErrNoActiveGame
	}
	if pair.Status == domain.StatusFinished {
		log.Printf("[answers] pair %s finished by completion", pair.ID)
	}
	s.publish(ctx, pair.View())
	return result, nil
}

// GetByID returns a pair visible to one of its players.
func (s *PairService) GetByID(ctx context.Context, id, userID string) (domain.PairView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.PairView{}, domain.ErrInvalidID
	}
	pair, err := s.pairs.Get(ctx, id)
	if err != nil {
		return domain.PairView{}, err
	}
	if !pair.HasUser(userID) {
		return domain.PairView{}, domain.ErrForbidden
	}
	return pair.View(), nil
}

// GetCurrent returns the user's pending or active pair.
func (s *PairService) GetCurrent(ctx context.Context, userID string) (domain.PairView, error) {
	pair, err := s.livePair(ctx, userID)
	if err != nil {
		return domain.PairView{}, err
	}
	return pair.View(), nil
}

// Subscribe streams updates of the user's current pair, starting from its present state.
func (s *PairService) Subscribe(ctx context.Context, userID string) (domain.PairView, <-chan domain.PairView, func(), error) {
	if s.notifier == nil {
		return domain.PairView{}, nil, nil, errors.New("live updates are not configured")
	}
	pair, err := s.livePair(ctx, userID)
	if err != nil {
		return domain.PairView{}, nil, nil, err
	}
	updates, cancel, err := s.notifier.Subscribe(ctx, pair.ID)
	if err != nil {
		return domain.PairView{}, nil, nil, err
	}
	return pair.View(), updates, cancel, nil
}

// livePair returns the user's pending or active pair. A pair past its grace
// deadline is finalized on the spot and no longer counts, whether or not the
// finalizer has swept it yet.
func (s *PairService) livePair(ctx context.Context, userID string) (*domain.Pair, error) {
	pair, err := s.pairs.FindLiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pair.Expired(s.now()) {
		s.finalizeExpired(ctx, pair.ID)
		return nil, domain.ErrPairNotFound
	}
	return pair, nil
}

func (s *PairService) finalizeExpired(ctx context.Context, id string) {
	pair, err := s.pairs.Update(ctx, id, func(p *domain.Pair) error {
		if !p.FinalizeIfExpired(s.now()) {
			return domain.ErrPairNotActive
		}
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrPairNotActive), errors.Is(err, domain.ErrPairNotFound):
		return
	case err != nil:
		// The finalizer retries on its next sweep.
		log.Printf("[answers] finalize expired pair %s: %v", id, err)
		return
	}
	log.Printf("[answers] pair %s finalized past its deadline", id)
	s.publish(ctx, pair.View())
}

func (s *PairService) publish(ctx context.Context, view domain.PairView) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, view)
	}
}
