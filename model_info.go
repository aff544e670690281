package imagerelay

// RateLimits defines client-side request limits for a provider.
type RateLimits struct {
	RequestsPerMinute int // 0 = unlimited
}

// ProviderInfo contains metadata for a description provider.
type ProviderInfo struct {
	// Identity
	Name         string // Registry identifier (e.g., "gemini")
	DefaultModel string // Model used when none is configured

	// Accepted inputs
	AcceptsImage bool
	AcceptsText  bool

	// Rate Limits
	RateLimits RateLimits
}
