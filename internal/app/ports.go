package app

import (
	"context"
	"time"

	"pair-quiz-service/internal/domain"
)

// PairRepository abstracts how pairs are stored (in-memory, Redis, Postgres).
//
// Update is the only way to mutate a stored pair: fn runs while the pair is
// exclusively held and its changes are committed only when fn returns nil.
type PairRepository interface {
	Create(ctx context.Context, pair *domain.Pair) error
	Get(ctx context.Context, id string) (*domain.Pair, error)
	FindLiveByUser(ctx context.Context, userID string) (*domain.Pair, error)
	ListPending(ctx context.Context, limit int) ([]string, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	Update(ctx context.Context, id string, fn func(*domain.Pair) error) (*domain.Pair, error)
}

// QuestionBank exposes the published questions of the external question bank.
type QuestionBank interface {
	PublishedQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionAssigner picks the frozen question set of a pair.
type QuestionAssigner interface {
	Assign(ctx context.Context) ([]domain.Question, error)
}

// UserLocker serializes matchmaking per user. The returned func releases the lock.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (func(), error)
}

// PairNotifier fans pair updates out to live subscribers.
// The caller must invoke the returned cancel function to avoid leaks.
type PairNotifier interface {
	Publish(ctx context.Context, view domain.PairView)
	Subscribe(ctx context.Context, pairID string) (<-chan domain.PairView, func(), error)
}
