// Package provider wires the built-in description providers into a registry.
package provider

import (
	"context"
	"net/http"

	"github.com/mhpenta/imagerelay"
	"github.com/mhpenta/imagerelay/config"
	"github.com/mhpenta/imagerelay/provider/gemini"
	"github.com/mhpenta/imagerelay/provider/ollama"
	"github.com/mhpenta/imagerelay/provider/openai"
)

// NewRegistry registers ollama, openai and gemini from explicit settings.
// Extra options are applied after the built-ins, so callers can override
// the retry policy or replace a provider.
func NewRegistry(cfg config.Providers, httpClient *http.Client, opts ...imagerelay.RegistryOption) *imagerelay.Registry {
	builtins := []imagerelay.RegistryOption{
		imagerelay.WithProvider(ollama.Info, func(ctx context.Context) (imagerelay.Describer, error) {
			return ollama.New(ollama.Config{
				Endpoint:   cfg.OllamaEndpoint,
				Model:      cfg.OllamaModel,
				HTTPClient: httpClient,
			})
		}),
		imagerelay.WithProvider(openai.Info, func(ctx context.Context) (imagerelay.Describer, error) {
			return openai.New(openai.Config{
				APIKey:     cfg.OpenAIAPIKey,
				BaseURL:    cfg.OpenAIEndpoint,
				Model:      cfg.OpenAIModel,
				HTTPClient: httpClient,
			})
		}),
		imagerelay.WithProvider(gemini.Info, func(ctx context.Context) (imagerelay.Describer, error) {
			return gemini.New(ctx, gemini.Config{
				APIKey:      cfg.GeminiAPIKey,
				BaseURL:     cfg.GeminiEndpoint,
				Model:       cfg.GeminiModel,
				VisionModel: cfg.GeminiVisionModel,
				HTTPClient:  httpClient,
			})
		}),
	}
	if cfg.Timeout > 0 {
		builtins = append(builtins, imagerelay.WithTimeout(cfg.Timeout))
	}

	return imagerelay.NewRegistry(append(builtins, opts...)...)
}
