package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket guarding outbound provider calls. One token
// is minted every refill interval up to the bucket capacity.
type RateLimiter struct {
	mu       sync.Mutex
	capacity int
	interval time.Duration
	tokens   int
	minted   time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter holding capacity tokens, minting one new
// token per interval. The bucket starts full.
func NewRateLimiter(capacity int, interval time.Duration) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &RateLimiter{
		capacity: capacity,
		interval: interval,
		tokens:   capacity,
		minted:   time.Now(),
		now:      time.Now,
	}
}

// Wait consumes a token, blocking until one is minted or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := r.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token if available. Otherwise it reports how long until the
// next token is minted.
func (r *RateLimiter) take() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if minted := int(now.Sub(r.minted) / r.interval); minted > 0 {
		r.tokens += minted
		if r.tokens > r.capacity {
			r.tokens = r.capacity
		}
		r.minted = r.minted.Add(time.Duration(minted) * r.interval)
	}

	if r.tokens > 0 {
		r.tokens--
		return 0, true
	}
	wait := r.interval - now.Sub(r.minted)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}
