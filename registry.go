package imagerelay

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mhpenta/imagerelay/ratelimiter"
	"github.com/mhpenta/imagerelay/retry"
)

// Factory creates a provider instance. It runs on every Resolve, so a
// missing credential only fails the lookup that needs it; factories should
// report missing settings as *ConfigError.
type Factory func(ctx context.Context) (Describer, error)

type registryEntry struct {
	info    ProviderInfo
	factory Factory
	limiter ratelimiter.Limiter
}

// Registry maps case-insensitive provider identifiers to factories. It is
// populated once by NewRegistry and is read-only afterwards, so it is safe
// for concurrent use without locking.
type Registry struct {
	entries map[string]registryEntry

	// Resilience applied to every resolved provider
	policy  retry.Policy
	maxWait time.Duration

	// Logger for structured logging (optional)
	logger *slog.Logger

	// Populated by options before the entries are built
	pending []registryEntry
}

// NewRegistry builds a registry from the given options.
//
// Example:
//
//	reg := imagerelay.NewRegistry(
//	    imagerelay.WithProvider(ollama.Info, func(ctx context.Context) (imagerelay.Describer, error) {
//	        return ollama.New(ollama.Config{Endpoint: endpoint})
//	    }),
//	    imagerelay.WithLogger(slog.Default()),
//	)
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]registryEntry),
		policy:  retry.DefaultPolicy(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	for _, e := range r.pending {
		key := normalizeIdentifier(e.info.Name)
		if rpm := e.info.RateLimits.RequestsPerMinute; rpm > 0 {
			e.limiter = ratelimiter.New(rpm)
		}
		r.entries[key] = e
	}
	r.pending = nil

	return r
}

// Resolve returns the provider registered under identifier, wrapped in
// Resilient. Unknown identifiers fail with a *ConfigError listing the known
// identifiers.
func (r *Registry) Resolve(ctx context.Context, identifier string) (Describer, error) {
	key := normalizeIdentifier(identifier)
	e, ok := r.entries[key]
	if !ok {
		r.logger.Warn("unknown provider requested", "provider", identifier)
		return nil, &ConfigError{Identifier: identifier, Known: r.Identifiers()}
	}

	inner, err := e.factory(ctx)
	if err != nil {
		r.logger.Error("failed to create provider",
			"provider", key,
			"error", err.Error(),
		)
		if IsConfigError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("creating %s provider: %w", key, err)
	}

	opts := []ResilientOption{
		WithRetryPolicy(r.policy),
		WithResilientLogger(r.logger),
	}
	if e.limiter != nil {
		opts = append(opts, WithLimiter(e.limiter, r.maxWait))
	}
	return NewResilient(inner, opts...), nil
}

// Identifiers returns the registered identifiers, sorted.
func (r *Registry) Identifiers() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Info returns the registered metadata for identifier.
func (r *Registry) Info(identifier string) (ProviderInfo, bool) {
	e, ok := r.entries[normalizeIdentifier(identifier)]
	return e.info, ok
}

// Infos returns metadata for all registered providers, sorted by identifier.
func (r *Registry) Infos() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(r.entries))
	for _, id := range r.Identifiers() {
		infos = append(infos, r.entries[id].info)
	}
	return infos
}

func normalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
