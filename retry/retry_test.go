package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 4 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
		Timeout:      time.Second,
	}
}

func TestDefaultPolicyDelays(t *testing.T) {
	p := DefaultPolicy()

	want := []time.Duration{4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", p.Timeout)
	}
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	var calls atomic.Int32
	got, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		if calls.Add(1) < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	upstream := errors.New("status 500")
	var calls atomic.Int32
	var delays []time.Duration

	p := fastPolicy()
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		delays = append(delays, delay)
	}

	start := time.Now()
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, upstream
	})
	elapsed := time.Since(start)

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if !errors.Is(err, upstream) {
		t.Errorf("error = %v, want wrapped upstream error", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("exhaustion must not be reported as timeout: %v", err)
	}
	if Attempts(err) != 3 {
		t.Errorf("Attempts = %d, want 3", Attempts(err))
	}
	if len(delays) != 2 || delays[0] != 4*time.Millisecond || delays[1] != 8*time.Millisecond {
		t.Errorf("delays = %v, want [4ms 8ms]", delays)
	}
	if elapsed < 12*time.Millisecond {
		t.Errorf("elapsed %v, want at least the summed backoff", elapsed)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("blocked")
	var calls atomic.Int32

	p := fastPolicy()
	p.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, permanent
	})
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if !errors.Is(err, permanent) {
		t.Errorf("error = %v", err)
	}
}

func TestDo_TimeoutWithRetriesRemaining(t *testing.T) {
	p := fastPolicy()
	p.Timeout = 30 * time.Millisecond

	block := make(chan struct{})
	defer close(block)

	var calls atomic.Int32
	start := time.Now()
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls.Add(1)
		// Ignores ctx on purpose.
		<-block
		return 0, nil
	})

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("returned after %v, want close to the 30ms timeout", elapsed)
	}
}

func TestDo_TimeoutDuringBackoff(t *testing.T) {
	p := fastPolicy()
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second
	p.Timeout = 20 * time.Millisecond

	upstream := errors.New("status 503")
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, upstream
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, upstream) {
		t.Errorf("timeout should keep the last upstream error: %v", err)
	}
	if Attempts(err) != 1 {
		t.Errorf("Attempts = %d, want 1", Attempts(err))
	}
}

func TestDo_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, fastPolicy(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("caller cancellation must not be reported as timeout")
	}
}
