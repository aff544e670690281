package imagerelay

import (
	"log/slog"
	"time"

	"github.com/mhpenta/imagerelay/retry"
)

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithProvider registers a factory under info.Name. Registering the same
// identifier twice keeps the last one.
func WithProvider(info ProviderInfo, factory Factory) RegistryOption {
	return func(r *Registry) {
		r.pending = append(r.pending, registryEntry{info: info, factory: factory})
	}
}

// WithLogger sets a structured logger for the registry and the providers it
// resolves.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithPolicy sets the retry policy applied to every resolved provider.
func WithPolicy(p retry.Policy) RegistryOption {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithTimeout overrides only the overall timeout of the retry policy.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.policy.Timeout = d
	}
}

// WithRateLimitWait sets how long a call may wait for its provider's rate
// limiter before failing with a RateLimitError.
func WithRateLimitWait(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.maxWait = d
	}
}
