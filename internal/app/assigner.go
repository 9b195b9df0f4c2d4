package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"pair-quiz-service/internal/domain"
)

// RandomAssigner draws distinct published questions in random order.
type RandomAssigner struct {
	bank  QuestionBank
	count int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomAssigner(bank QuestionBank, count int) *RandomAssigner {
	if count <= 0 {
		count = domain.DefaultQuestionsPerPair
	}
	return &RandomAssigner{
		bank:  bank,
		count: count,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *RandomAssigner) Assign(ctx context.Context) ([]domain.Question, error) {
	questions, err := a.bank.PublishedQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load published questions: %w", err)
	}

	published := make([]domain.Question, 0, len(questions))
	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if !q.Published {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		published = append(published, q)
	}
	if len(published) < a.count {
		return nil, fmt.Errorf("%w: need %d, have %d", domain.ErrInsufficientQuestions, a.count, len(published))
	}

	a.mu.Lock()
	order := a.rnd.Perm(len(published))
	a.mu.Unlock()

	picked := make([]domain.Question, 0, a.count)
	for _, idx := range order[:a.count] {
		picked = append(picked, published[idx])
	}
	return picked, nil
}
