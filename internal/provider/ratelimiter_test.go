package provider

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterConsumesBurst(t *testing.T) {
	t.Parallel()

	r := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.Wait(ctx); err != nil {
			t.Fatalf("token %d: unexpected error: %v", i, err)
		}
	}

	if _, ok := r.take(); ok {
		t.Fatal("expected empty bucket after burst")
	}
}

func TestRateLimiterMintsOverTime(t *testing.T) {
	t.Parallel()

	r := NewRateLimiter(2, time.Minute)
	base := time.Now()
	r.now = func() time.Time { return base }
	r.minted = base

	r.take()
	r.take()
	if _, ok := r.take(); ok {
		t.Fatal("expected empty bucket")
	}

	// Two intervals later both tokens are back, capped at capacity.
	r.now = func() time.Time { return base.Add(3 * time.Minute) }
	if _, ok := r.take(); !ok {
		t.Fatal("expected minted token")
	}
	if _, ok := r.take(); !ok {
		t.Fatal("expected second minted token")
	}
	if _, ok := r.take(); ok {
		t.Fatal("expected cap at capacity")
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	r := NewRateLimiter(1, time.Hour)
	ctx := context.Background()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := r.Wait(cancelled); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
