package weather

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Throttle bounds calls to the shared metered provider account: at most
// maxConcurrent calls in flight, and at least minInterval between the start of
// any two dispatches. One instance is constructed by the composition root and
// shared by everything that talks to the provider — the limit protects the
// account, not a single caller.
type Throttle struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	disabled bool
}

// NewThrottle builds a throttle with the given bounds.
func NewThrottle(maxConcurrent int64, minInterval time.Duration) *Throttle {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if minInterval <= 0 {
		minInterval = 100 * time.Millisecond
	}
	return &Throttle{
		sem:     semaphore.NewWeighted(maxConcurrent),
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// NewDisabledThrottle returns a pass-through throttle for tests, so suites
// never block on pacing delays.
func NewDisabledThrottle() *Throttle {
	return &Throttle{disabled: true}
}

// Run executes fn once both invariants are satisfied. The concurrency slot is
// held for the whole call, including any retries inside fn, and is always
// released. Waiting suspends on the context rather than polling.
func (t *Throttle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.disabled {
		return fn(ctx)
	}

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer t.sem.Release(1)

	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	return fn(ctx)
}
