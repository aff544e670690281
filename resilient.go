package imagerelay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mhpenta/imagerelay/metrics"
	"github.com/mhpenta/imagerelay/ratelimiter"
	"github.com/mhpenta/imagerelay/retry"
)

// Resilient wraps a Describer with validation, client-side rate limiting,
// retries with capped exponential backoff and an overall timeout. Errors are
// mapped onto the typed errors of this package.
type Resilient struct {
	inner   Describer
	policy  retry.Policy
	limiter ratelimiter.Limiter
	maxWait time.Duration
	logger  *slog.Logger
}

// Ensure Resilient implements Describer.
var _ Describer = (*Resilient)(nil)

// ResilientOption configures a Resilient describer.
type ResilientOption func(*Resilient)

// WithRetryPolicy overrides retry.DefaultPolicy.
func WithRetryPolicy(p retry.Policy) ResilientOption {
	return func(r *Resilient) {
		r.policy = p
	}
}

// WithLimiter sets the request limiter and the longest time to wait on it.
// A maxWait of zero waits as long as the caller's context allows.
func WithLimiter(l ratelimiter.Limiter, maxWait time.Duration) ResilientOption {
	return func(r *Resilient) {
		r.limiter = l
		r.maxWait = maxWait
	}
}

// WithResilientLogger sets a structured logger.
func WithResilientLogger(logger *slog.Logger) ResilientOption {
	return func(r *Resilient) {
		r.logger = logger
	}
}

// NewResilient wraps inner. A limiter is created from inner's RateLimits
// unless one is supplied.
func NewResilient(inner Describer, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		inner:  inner,
		policy: retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	if rpm := inner.Info().RateLimits.RequestsPerMinute; rpm > 0 {
		r.limiter = ratelimiter.New(rpm)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Name() string { return r.inner.Name() }

func (r *Resilient) Info() ProviderInfo { return r.inner.Info() }

func (r *Resilient) Close() error { return r.inner.Close() }

// Unwrap returns the wrapped provider.
func (r *Resilient) Unwrap() Describer { return r.inner }

// Describe validates req and calls the wrapped provider under the retry policy.
func (r *Resilient) Describe(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
	name := r.inner.Name()
	start := time.Now()

	if err := ValidateDescriptionRequest(req, r.inner.Info()); err != nil {
		metrics.DescriptionCalls.WithLabelValues(name, "invalid").Inc()
		return nil, err
	}

	r.logger.Debug("starting description",
		"provider", name,
		"prompt_length", len(req.Prompt),
		"has_image", req.HasImage(),
	)

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, r.maxWait); err != nil {
			metrics.DescriptionCalls.WithLabelValues(name, "rate_limited").Inc()
			r.logger.Warn("rate limit hit", "provider", name, "error", err.Error())
			return nil, &RateLimitError{
				RetryAfter: r.limiter.TimeUntilAvailable(),
				Provider:   name,
				Err:        err,
			}
		}
	}

	policy := r.policy
	userRetryable := policy.Retryable
	policy.Retryable = func(err error) bool {
		if !isRetryable(err) {
			return false
		}
		return userRetryable == nil || userRetryable(err)
	}
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.logger.Warn("description attempt failed, retrying",
			"provider", name,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}

	result, err := retry.Do(ctx, policy, func(ctx context.Context) (*DescriptionResult, error) {
		metrics.DescriptionAttempts.WithLabelValues(name).Inc()
		return r.inner.Describe(ctx, req)
	})
	duration := time.Since(start)
	metrics.DescriptionDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		attempts := retry.Attempts(err)
		err = r.classify(err, policy)
		metrics.DescriptionCalls.WithLabelValues(name, outcome(err)).Inc()
		r.logger.Error("description failed",
			"provider", name,
			"duration_ms", duration.Milliseconds(),
			"attempts", attempts,
			"error", err.Error(),
		)
		return nil, err
	}
	if result == nil {
		err := &ProviderError{Provider: name, Err: errors.New("provider returned no result")}
		metrics.DescriptionCalls.WithLabelValues(name, outcome(err)).Inc()
		return nil, err
	}

	metrics.DescriptionCalls.WithLabelValues(name, "ok").Inc()
	r.logger.Info("description completed",
		"provider", name,
		"duration_ms", duration.Milliseconds(),
		"text_length", len(result.Text),
	)

	return result, nil
}

// classify maps a retry error onto the package's typed errors.
func (r *Resilient) classify(err error, policy retry.Policy) error {
	attempts := retry.Attempts(err)

	if errors.Is(err, retry.ErrTimeout) {
		return &TimeoutError{
			Stage:    StageDescription,
			Attempts: attempts,
			Limit:    policy.Timeout,
			Err:      err,
		}
	}

	var rErr *retry.Error
	if errors.As(err, &rErr) {
		err = rErr.Err
	}

	var pErr *ProviderError
	switch {
	case errors.As(err, &pErr):
		pErr.Attempts = attempts
		return pErr
	case IsContentBlockedError(err), IsConfigError(err), IsValidationError(err),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &ProviderError{Provider: r.inner.Name(), Attempts: attempts, Err: err}
	}
}

// isRetryable reports whether a failed attempt may be retried. Refusals,
// configuration problems, invalid input and client errors other than
// timeouts and throttling are final.
func isRetryable(err error) bool {
	if IsContentBlockedError(err) || IsConfigError(err) || IsValidationError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pErr *ProviderError
	if errors.As(err, &pErr) && pErr.StatusCode >= 400 && pErr.StatusCode < 500 {
		return pErr.StatusCode == http.StatusRequestTimeout || pErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func outcome(err error) string {
	switch {
	case IsTimeoutError(err):
		return "timeout"
	case IsContentBlockedError(err):
		return "blocked"
	case IsConfigError(err):
		return "config"
	case IsProviderError(err):
		return "provider_error"
	default:
		return "error"
	}
}
