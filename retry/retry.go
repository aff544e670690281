// Package retry runs a call with capped exponential backoff under an overall
// deadline.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrTimeout is wrapped by the error returned when the overall timeout
// expires, whether during a call or during a backoff wait.
var ErrTimeout = errors.New("overall timeout exceeded")

// Policy configures Do.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay caps every wait.
	MaxDelay time.Duration

	// Multiplier grows the wait between consecutive attempts.
	Multiplier float64

	// Timeout bounds all attempts and waits together. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration

	// Retryable decides whether a failed attempt may be retried. Nil retries
	// every error.
	Retryable func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns 3 attempts, waits of 4s then 8s (capped at 10s) and
// a 30s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 4 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Timeout:      30 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Error is returned by Do on failure. It records how many calls were made.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Attempts returns the attempt count recorded in err, or 0.
func Attempts(err error) int {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Attempts
	}
	return 0
}

type outcome[T any] struct {
	val T
	err error
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or exceeds the policy timeout. Each call runs on its own goroutine
// so a call that ignores its context still cannot outlive the timeout.
//
// When the caller's ctx ends first, its error is returned as is.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	callCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt - 1)
			if p.OnRetry != nil {
				p.OnRetry(attempt-1, lastErr, delay)
			}
			if err := sleep(callCtx, delay); err != nil {
				return zero, stopped(ctx, attempt-1, lastErr)
			}
		}

		ch := make(chan outcome[T], 1)
		go func() {
			v, err := fn(callCtx)
			ch <- outcome[T]{val: v, err: err}
		}()

		select {
		case <-callCtx.Done():
			return zero, stopped(ctx, attempt, lastErr)
		case o := <-ch:
			if o.err == nil {
				return o.val, nil
			}
			lastErr = o.err
		}

		if callCtx.Err() != nil {
			return zero, stopped(ctx, attempt, lastErr)
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return zero, &Error{Attempts: attempt, Err: lastErr}
		}
	}

	return zero, &Error{Attempts: maxAttempts, Err: lastErr}
}

// stopped builds the error for a loop ended by a done context.
func stopped(parent context.Context, attempts int, lastErr error) error {
	if err := parent.Err(); err != nil {
		return err
	}
	err := ErrTimeout
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrTimeout, lastErr)
	}
	return &Error{Attempts: attempts, Err: err}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
