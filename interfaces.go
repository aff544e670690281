package imagerelay

import "context"

// Describer is the core interface for description providers.
// Implement this interface to add support for new models or providers.
//
// A Describer performs exactly one upstream call per Describe. Retries,
// timeouts and rate limiting are applied by Resilient, which the Registry
// wraps around every provider it returns.
type Describer interface {
	// Name returns the provider identifier, e.g. "ollama" or "gemini".
	Name() string

	// Info returns what the provider accepts and how it is limited.
	Info() ProviderInfo

	// Describe returns a text description of the request's image, or a
	// completion of its prompt for text-only requests.
	Describe(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ImageGenerator drives an external generation engine for a single prompt.
type ImageGenerator interface {
	// Submit queues the prompt and returns the engine's job id.
	Submit(ctx context.Context, prompt string) (string, error)

	// AwaitCompletion waits for the job and returns a reference to its
	// first output image.
	AwaitCompletion(ctx context.Context, jobID string) (string, error)
}
