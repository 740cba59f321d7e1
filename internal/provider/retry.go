package provider

import (
	"context"
	"time"
)

// Retry re-runs fn on transient errors with exponential backoff:
// backoff, 2*backoff, 4*backoff, ... up to attempts total runs.
// Non-transient errors (including ErrCircuitOpen) abort immediately.
type Retry struct {
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetry(attempts int, backoff time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepCtx,
	}
}

func (r *Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	delay := r.backoff
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			delay *= 2
		}
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
