package gemini

import "github.com/mhpenta/imagerelay"

// DefaultModel is the API model name used when none is configured.
// Gemini 2.5 Flash accepts both text and inline images.
const DefaultModel = "gemini-2.5-flash"

// Info is the provider metadata registered for Gemini.
var Info = imagerelay.ProviderInfo{
	Name:         "gemini",
	DefaultModel: DefaultModel,
	AcceptsImage: true,
	AcceptsText:  true,

	RateLimits: imagerelay.RateLimits{
		RequestsPerMinute: 500, // ~500 RPM for Tier 1
	},
}
