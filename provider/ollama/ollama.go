// Package ollama provides a Describer backed by a local Ollama server's
// generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mhpenta/imagerelay"
)

const (
	// DefaultEndpoint is the generate endpoint of a local Ollama server.
	DefaultEndpoint = "http://localhost:11434/api/generate"

	// DefaultModel is a vision-capable model available in the Ollama library.
	DefaultModel = "llama3.2-vision"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 10 << 20
)

// Info is the provider metadata registered for Ollama.
var Info = imagerelay.ProviderInfo{
	Name:         "ollama",
	DefaultModel: DefaultModel,
	AcceptsImage: true,
	AcceptsText:  true,
}

// Config holds the settings of an Ollama describer.
type Config struct {
	// Endpoint is the full URL of the generate endpoint (OLLAMA_API_ENDPOINT)
	Endpoint string

	// Model defaults to DefaultModel
	Model string

	// HTTPClient defaults to http.DefaultClient
	HTTPClient *http.Client
}

// Describer calls Ollama's non-streaming generate API.
type Describer struct {
	endpoint string
	model    string
	client   *http.Client
}

// Ensure Describer implements imagerelay.Describer.
var _ imagerelay.Describer = (*Describer)(nil)

// New creates an Ollama describer. An empty endpoint is a configuration
// error.
func New(cfg Config) (*Describer, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, &imagerelay.ConfigError{Identifier: Info.Name, Variable: "OLLAMA_API_ENDPOINT"}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Describer{
		endpoint: endpoint,
		model:    model,
		client:   client,
	}, nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (d *Describer) Name() string { return Info.Name }

func (d *Describer) Info() imagerelay.ProviderInfo { return Info }

// Model returns the model name sent with every request.
func (d *Describer) Model() string { return d.model }

// Describe sends one generate request. Non-2xx responses and bodies without
// a usable "response" field fail with *imagerelay.ProviderError.
func (d *Describer) Describe(ctx context.Context, req imagerelay.DescriptionRequest) (*imagerelay.DescriptionResult, error) {
	payload := generateRequest{
		Model:  d.model,
		Prompt: req.PromptOrDefault(),
		Stream: false,
	}
	if req.HasImage() {
		payload.Images = []string{req.Image.Base64()}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, imagerelay.NewProviderError(Info.Name, 0, nil, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, imagerelay.NewProviderError(Info.Name, resp.StatusCode, nil, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, imagerelay.NewProviderError(Info.Name, resp.StatusCode, respBody, nil)
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, imagerelay.NewProviderError(Info.Name, 0, respBody, fmt.Errorf("decoding response: %w", err))
	}
	if out.Error != "" {
		return nil, imagerelay.NewProviderError(Info.Name, 0, respBody, errors.New(out.Error))
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, imagerelay.NewProviderError(Info.Name, 0, respBody, errors.New("empty response"))
	}

	return &imagerelay.DescriptionResult{Text: out.Response}, nil
}

// Close is a no-op; the HTTP client is shared.
func (d *Describer) Close() error {
	return nil
}
