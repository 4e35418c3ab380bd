package weather

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy wraps outbound calls in capped exponential backoff. MaxRetries
// counts retries after the first attempt, so the default of 2 yields three
// invocations with 1s and 2s waits between them.
type RetryPolicy struct {
	MaxRetries   uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the provider call budget: 3 total attempts,
// 1s initial delay, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
	}
}

// Do runs fn, retrying while shouldRetry approves the error and attempts
// remain. The final error is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, shouldRetry func(error) bool, fn func(ctx context.Context) error) error {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = 1 * time.Second
	}

	var backoff retry.Backoff = retry.NewExponential(initial)
	if p.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(p.MaxRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
