package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket holding at most one token, refilled at a
// fixed rate. A limiter built with a non-positive rate never blocks.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute. The first operation is admitted immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		rate:   float64(perMinute) / 60.0,
		tokens: 1,
		last:   time.Now(),
		now:    time.Now,
	}
}

// reserve takes a token if one is available and returns zero, or returns
// how long until the next token.
func (rl *RateLimiter) reserve() time.Duration {
	if rl.rate <= 0 {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens = min(1, rl.tokens+now.Sub(rl.last).Seconds()*rl.rate)
	rl.last = now
	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
	return max(wait, time.Millisecond)
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		d := rl.reserve()
		if d == 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
