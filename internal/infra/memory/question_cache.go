package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pair-quiz-service/internal/domain"
)

// QuestionLoader fetches published questions from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadPublished(ctx context.Context) ([]domain.Question, error)
}

const publishedKey = "published"

// QuestionCache caches the published question set with TTL to avoid repeated DB hits.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) PublishedQuestions(ctx context.Context) ([]domain.Question, error) {
	if cached, ok := c.fresh(c.clock()); ok {
		return cached, nil
	}

	result, err, _ := c.sf.Do(publishedKey, func() (interface{}, error) {
		now := c.clock()
		if cached, ok := c.fresh(now); ok {
			return cached, nil
		}

		questions, err := c.loader.LoadPublished(ctx)
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(c.ttlWithJitter())
		c.mu.Lock()
		c.questions = questions
		c.expiresAt = expiresAt
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) fresh(now time.Time) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.questions != nil && c.expiresAt.After(now) {
		return c.questions, true
	}
	return nil, false
}

// ttlWithJitter is only called inside the singleflight section, which serializes rnd use.
func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadPublished(_ context.Context) ([]domain.Question, error) {
	published := make([]domain.Question, 0, len(l.questions))
	for _, q := range l.questions {
		if q.Published {
			published = append(published, q)
		}
	}
	return published, nil
}

// PublishedQuestions lets the static loader act as a question bank without a cache.
func (l *StaticQuestionLoader) PublishedQuestions(ctx context.Context) ([]domain.Question, error) {
	return l.LoadPublished(ctx)
}
