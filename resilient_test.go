package imagerelay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mhpenta/imagerelay/retry"
)

func TestResilient_RetriesUpstream500(t *testing.T) {
	mock := &MockDescriber{
		NameValue: "mock",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			return nil, NewProviderError("mock", 500, []byte(`{"error":"boom"}`), nil)
		},
	}
	d := NewResilient(mock, WithRetryPolicy(fastPolicy()))

	start := time.Now()
	result, err := d.Describe(context.Background(), DescriptionRequest{Prompt: "a red bicycle"})
	elapsed := time.Since(start)

	if result != nil {
		t.Errorf("result = %+v, want nil on failure", result)
	}
	var pErr *ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if pErr.StatusCode != 500 || pErr.Body != `{"error":"boom"}` {
		t.Errorf("ProviderError = %+v", pErr)
	}
	if pErr.Attempts != 3 || mock.Calls() != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", pErr.Attempts, mock.Calls())
	}
	// 4ms + 8ms of backoff
	if elapsed < 12*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 12ms", elapsed)
	}
}

func TestResilient_DefaultPolicyDelays(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the production 4s/8s backoff")
	}

	mock := &MockDescriber{
		NameValue: "mock",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			return nil, NewProviderError("mock", 500, nil, nil)
		},
	}
	d := NewResilient(mock)

	start := time.Now()
	_, err := d.Describe(context.Background(), DescriptionRequest{Prompt: "a red bicycle"})
	elapsed := time.Since(start)

	if !IsProviderError(err) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if mock.Calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.Calls())
	}
	if elapsed < 4*time.Second || elapsed > 22*time.Second {
		t.Errorf("cumulative delay %v outside [4s, 22s]", elapsed)
	}
}

func TestResilient_TimeoutWithRetriesRemaining(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	mock := &MockDescriber{
		NameValue: "slow",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			<-block
			return &DescriptionResult{Text: "too late"}, nil
		},
	}
	policy := fastPolicy()
	policy.Timeout = 30 * time.Millisecond
	d := NewResilient(mock, WithRetryPolicy(policy))

	_, err := d.Describe(context.Background(), DescriptionRequest{Prompt: "a red bicycle"})

	var tErr *TimeoutError
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
	if tErr.Stage != StageDescription {
		t.Errorf("Stage = %q, want description", tErr.Stage)
	}
	if tErr.Limit != 30*time.Millisecond {
		t.Errorf("Limit = %v", tErr.Limit)
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
}

func TestResilient_ContentBlockedIsNotRetried(t *testing.T) {
	mock := &MockDescriber{
		NameValue: "gemini",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			return nil, &ContentBlockedError{Provider: "gemini", Reason: "SAFETY"}
		},
	}
	d := NewResilient(mock, WithRetryPolicy(fastPolicy()))

	_, err := d.Describe(context.Background(), DescriptionRequest{Prompt: "something"})
	if !IsContentBlockedError(err) {
		t.Fatalf("error = %v, want ContentBlockedError", err)
	}
	if IsProviderError(err) {
		t.Error("blocked content must stay distinct from ProviderError")
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
}

func TestResilient_ClientErrorsAreFinal(t *testing.T) {
	tests := []struct {
		status    int
		wantCalls int
	}{
		{status: 401, wantCalls: 1},
		{status: 404, wantCalls: 1},
		{status: 429, wantCalls: 3},
		{status: 503, wantCalls: 3},
	}

	for _, tt := range tests {
		mock := &MockDescriber{
			NameValue: "mock",
			DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
				return nil, NewProviderError("mock", tt.status, nil, nil)
			},
		}
		d := NewResilient(mock, WithRetryPolicy(fastPolicy()))

		_, err := d.Describe(context.Background(), DescriptionRequest{Prompt: "x"})
		if !IsProviderError(err) {
			t.Errorf("status %d: error = %v", tt.status, err)
		}
		if mock.Calls() != tt.wantCalls {
			t.Errorf("status %d: calls = %d, want %d", tt.status, mock.Calls(), tt.wantCalls)
		}
	}
}

func TestResilient_PlainErrorsBecomeProviderErrors(t *testing.T) {
	netErr := errors.New("connection refused")
	var calls int
	mock := &MockDescriber{
		NameValue: "ollama",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			calls++
			if calls < 3 {
				return nil, netErr
			}
			return &DescriptionResult{Text: "a red bicycle leaning on a wall"}, nil
		},
	}
	d := NewResilient(mock, WithRetryPolicy(fastPolicy()))

	result, err := d.Describe(context.Background(), DescriptionRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "a red bicycle leaning on a wall" {
		t.Errorf("Text = %q", result.Text)
	}

	failing := NewResilient(&MockDescriber{
		NameValue: "ollama",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			return nil, netErr
		},
	}, WithRetryPolicy(fastPolicy()))
	_, err = failing.Describe(context.Background(), DescriptionRequest{Prompt: "x"})
	var pErr *ProviderError
	if !errors.As(err, &pErr) || !errors.Is(err, netErr) {
		t.Fatalf("error = %v, want ProviderError wrapping the network error", err)
	}
	if pErr.Provider != "ollama" || pErr.Attempts != 3 {
		t.Errorf("ProviderError = %+v", pErr)
	}
}

func TestResilient_ValidationBeforeCall(t *testing.T) {
	mock := &MockDescriber{NameValue: "mock"}
	d := NewResilient(mock, WithRetryPolicy(fastPolicy()))

	_, err := d.Describe(context.Background(), DescriptionRequest{})
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("error = %v, want ErrEmptyPrompt", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("calls = %d, want 0", mock.Calls())
	}
}

func TestResilient_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &MockDescriber{
		NameValue: "mock",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	d := NewResilient(mock, WithRetryPolicy(fastPolicy()))

	_, err := d.Describe(ctx, DescriptionRequest{Prompt: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if IsTimeoutError(err) {
		t.Error("caller cancellation is not a timeout")
	}
}

func TestResilient_OnRetryIsPreserved(t *testing.T) {
	var retries []int
	policy := fastPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}
	mock := &MockDescriber{
		NameValue: "mock",
		DescribeFunc: func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
			return nil, NewProviderError("mock", 502, nil, nil)
		},
	}

	_, _ = NewResilient(mock, WithRetryPolicy(policy)).Describe(context.Background(), DescriptionRequest{Prompt: "x"})
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retries)
	}
	if retry.DefaultPolicy().OnRetry != nil {
		t.Error("default policy must not carry callbacks")
	}
}
