package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"pair-quiz-service/internal/domain"
)

// Finalizer closes active pairs whose grace deadline has passed.
type Finalizer struct {
	pairs    PairRepository
	notifier PairNotifier
	interval time.Duration
	batch    int
	workers  int
	now      func() time.Time

	sched gocron.Scheduler
}

func NewFinalizer(pairs PairRepository, notifier PairNotifier, interval time.Duration, batch, workers int) *Finalizer {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	if workers <= 0 {
		workers = 4
	}
	return &Finalizer{
		pairs:    pairs,
		notifier: notifier,
		interval: interval,
		batch:    batch,
		workers:  workers,
		now:      time.Now,
	}
}

// WithClock swaps the time source; used by tests for deterministic deadlines.
func (f *Finalizer) WithClock(now func() time.Time) *Finalizer {
	f.now = now
	return f
}

// Sweep finalizes one batch of expired pairs and reports how many it closed.
// Pairs that were finished concurrently are skipped; failed pairs stay
// expired and are retried on the next sweep.
func (f *Finalizer) Sweep(ctx context.Context) (int, error) {
	ids, err := f.pairs.ListExpired(ctx, f.now(), f.batch)
	if err != nil {
		return 0, fmt.Errorf("list expired pairs: %w", err)
	}

	var finalized atomic.Int64
	var g errgroup.Group
	g.SetLimit(f.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			pair, err := f.pairs.Update(ctx, id, func(p *domain.Pair) error {
				if !p.FinalizeIfExpired(f.now()) {
					return domain.ErrPairNotActive
				}
				return nil
			})
			switch {
			case errors.Is(err, domain.ErrPairNotActive), errors.Is(err, domain.ErrPairNotFound):
				return nil
			case err != nil:
				log.Printf("[finalizer] finalize pair %s: %v", id, err)
				return nil
			}
			finalized.Add(1)
			if f.notifier != nil {
				f.notifier.Publish(ctx, pair.View())
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(finalized.Load()), nil
}

// Start runs Sweep on a fixed cadence until Stop is called.
func (f *Finalizer) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(f.interval),
		gocron.NewTask(func() {
			n, err := f.Sweep(ctx)
			if err != nil {
				log.Printf("[finalizer] sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[finalizer] finalized %d pairs", n)
			}
		}),
		gocron.WithName("pair-finalizer"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("register finalizer job: %w", err)
	}
	sched.Start()
	f.sched = sched
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to return.
func (f *Finalizer) Stop() error {
	if f.sched == nil {
		return nil
	}
	return f.sched.Shutdown()
}
