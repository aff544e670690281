package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenBucket implements a token bucket that refills continuously.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	remaining  float64
	perSecond  float64
	lastRefill time.Time
}

// Ensure TokenBucket implements Limiter.
var _ Limiter = (*TokenBucket)(nil)

// New creates a limiter allowing requestsPerMinute requests, starting full.
func New(requestsPerMinute int) *TokenBucket {
	return NewTokenBucket(requestsPerMinute, requestsPerMinute, time.Minute)
}

// NewTokenBucket creates a bucket holding up to capacity tokens, refilled at
// capacity tokens per interval.
func NewTokenBucket(capacity int, initialTokens int, interval time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		remaining:  float64(initialTokens),
		perSecond:  float64(capacity) / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

// refill must be called with mu held.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.remaining = min(tb.capacity, tb.remaining+elapsed*tb.perSecond)
	tb.lastRefill = now
}

// TryAcquire takes one token if available.
func (tb *TokenBucket) TryAcquire() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	if tb.remaining >= 1 {
		tb.remaining--
		return true
	}
	return false
}

// TimeUntilAvailable returns how long until one token would be available.
func (tb *TokenBucket) TimeUntilAvailable() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	if tb.remaining >= 1 {
		return 0
	}
	if tb.perSecond <= 0 {
		return time.Duration(1<<63 - 1)
	}
	needed := 1 - tb.remaining
	return time.Duration(needed / tb.perSecond * float64(time.Second))
}

// Wait blocks until a token is available (up to maxWait), then takes it.
// If maxWait is 0, there is no limit on how long to wait.
func (tb *TokenBucket) Wait(ctx context.Context, maxWait time.Duration) error {
	var deadline time.Time
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}

	for {
		if tb.TryAcquire() {
			return nil
		}

		wait := tb.TimeUntilAvailable()
		if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
			return fmt.Errorf("rate limit wait time %v exceeds max wait %v", wait, maxWait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Another caller may have taken the token; try again.
		}
	}
}
