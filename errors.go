package imagerelay

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage names the part of a relay flow where a timeout occurred.
type Stage string

const (
	StageDescription Stage = "description"
	StageAdmission   Stage = "admission"
	StageSubmission  Stage = "submission"
	StageCompletion  Stage = "completion"
)

// maxBodyExcerpt bounds how much of an upstream body is kept on an error.
const maxBodyExcerpt = 2048

// ConfigError is returned for an unknown provider identifier or a provider
// that is missing a required setting.
type ConfigError struct {
	Identifier string
	Variable   string   // Missing setting, e.g. "OPENAI_API_KEY"
	Known      []string // Registered identifiers, sorted
}

func (e *ConfigError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("provider %q is not configured: %s is required", e.Identifier, e.Variable)
	}
	return fmt.Sprintf("unknown provider %q, known providers: %s",
		e.Identifier, strings.Join(e.Known, ", "))
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// ProviderError is returned when an upstream model call fails with a
// non-success status or an unusable body.
type ProviderError struct {
	Provider   string
	StatusCode int    // 0 when no HTTP status was received
	Body       string // Upstream body excerpt for diagnostics
	Attempts   int
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s provider error", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError checks if an error is a ProviderError.
func IsProviderError(err error) bool {
	var pErr *ProviderError
	return errors.As(err, &pErr)
}

// NewProviderError builds a ProviderError, truncating the body.
func NewProviderError(provider string, status int, body []byte, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Body:       excerpt(body),
		Err:        err,
	}
}

// ContentBlockedError is returned when a provider refuses to answer.
type ContentBlockedError struct {
	Provider string
	Reason   string
}

func (e *ContentBlockedError) Error() string {
	return fmt.Sprintf("content blocked by %s: %s", e.Provider, e.Reason)
}

// IsContentBlockedError checks if an error is a ContentBlockedError.
func IsContentBlockedError(err error) bool {
	var cbErr *ContentBlockedError
	return errors.As(err, &cbErr)
}

// TimeoutError is returned when a call or polling ceiling was exceeded.
type TimeoutError struct {
	Stage    Stage
	Attempts int
	Limit    time.Duration // Overall ceiling, zero for attempt-bounded stages
	Err      error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s timed out after %d attempts", e.Stage, e.Attempts)
	if e.Limit > 0 {
		msg += fmt.Sprintf(" (limit %v)", e.Limit)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeoutError checks if an error is a TimeoutError.
func IsTimeoutError(err error) bool {
	var tErr *TimeoutError
	return errors.As(err, &tErr)
}

// SubmissionError is returned when the generation engine rejects a job or
// does not acknowledge it.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	msg := "job submission failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsSubmissionError checks if an error is a SubmissionError.
func IsSubmissionError(err error) bool {
	var sErr *SubmissionError
	return errors.As(err, &sErr)
}

// NewSubmissionError builds a SubmissionError, truncating the body.
func NewSubmissionError(status int, body []byte, err error) *SubmissionError {
	return &SubmissionError{StatusCode: status, Body: excerpt(body), Err: err}
}

// NotFoundError is returned when a produced artifact is missing.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// RateLimitError is returned when the local request budget for a provider
// is exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
	Provider   string
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %v", e.Provider, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimitError checks if an error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// ErrStorageNotConfigured is returned when storage operations are attempted
// without a configured storage backend.
var ErrStorageNotConfigured = errors.New("storage not configured")

// PublicError is implemented by errors whose message may be shown to API
// clients. Public leaves out wrapped transport errors, which carry
// upstream addresses.
type PublicError interface {
	error
	Public() string
}

// PublicMessage returns the client-safe message of the first PublicError in
// err's chain.
func PublicMessage(err error) (string, bool) {
	var pub PublicError
	if errors.As(err, &pub) {
		return pub.Public(), true
	}
	return "", false
}

func (e *ConfigError) Public() string { return e.Error() }

func (e *ProviderError) Public() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s provider error", e.Provider)
	switch {
	case e.StatusCode != 0:
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	case e.Body == "":
		b.WriteString(" (no response)")
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *ContentBlockedError) Public() string { return e.Error() }

func (e *TimeoutError) Public() string { return e.Error() }

func (e *SubmissionError) Public() string {
	msg := "job submission failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *NotFoundError) Public() string { return "output image not found" }

func (e *RateLimitError) Public() string { return e.Error() }

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyExcerpt {
		s = s[:maxBodyExcerpt] + "..."
	}
	return s
}
