// Package gemini provides a Describer implementation using Google's Gemini API.
//
// This provider uses the Gemini API backend via the official Go SDK:
// https://github.com/googleapis/go-genai
//
// For Vertex AI or other Google Cloud backends, a separate provider implementation
// could be created using the same SDK with a different backend configuration.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/mhpenta/imagerelay"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models used by the describer.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the settings of a Gemini describer.
type Config struct {
	APIKey string

	// BaseURL overrides the API root (GEMINI_API_ENDPOINT)
	BaseURL string

	// Model is used for text-only requests; defaults to DefaultModel
	Model string

	// VisionModel is used for requests with an image; defaults to Model
	VisionModel string

	HTTPClient *http.Client
}

// GeminiDescriber implements imagerelay.Describer using Google's Gemini API.
type GeminiDescriber struct {
	models      contentGenerator
	model       string
	visionModel string
}

// Ensure GeminiDescriber implements the interface.
var _ imagerelay.Describer = (*GeminiDescriber)(nil)

// New creates a new GeminiDescriber. A missing API key is a configuration
// error; the SDK is never left to pick one up from the environment.
func New(ctx context.Context, cfg Config) (*GeminiDescriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &imagerelay.ConfigError{Identifier: Info.Name, Variable: "GEMINI_API_KEY"}
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newWithGenerator(client.Models, cfg), nil
}

func newWithGenerator(models contentGenerator, cfg Config) *GeminiDescriber {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = model
	}
	return &GeminiDescriber{
		models:      models,
		model:       model,
		visionModel: visionModel,
	}
}

func (g *GeminiDescriber) Name() string { return Info.Name }

func (g *GeminiDescriber) Info() imagerelay.ProviderInfo { return Info }

// Describe sends the prompt, preceded by the image as an inline blob when
// present. Safety refusals fail with *imagerelay.ContentBlockedError.
func (g *GeminiDescriber) Describe(ctx context.Context, req imagerelay.DescriptionRequest) (*imagerelay.DescriptionResult, error) {
	modelName := g.model
	parts := make([]*genai.Part, 0, 2)

	if req.HasImage() {
		mimeType, err := decodeImage(req.Image.Data)
		if err != nil {
			return nil, err
		}
		modelName = g.visionModel
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     req.Image.Data,
				MIMEType: mimeType,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: req.PromptOrDefault()})

	contents := []*genai.Content{
		{Role: "user", Parts: parts},
	}

	result, err := g.models.GenerateContent(ctx, modelName, contents, nil)
	if err != nil {
		return nil, mapError(err, modelName)
	}

	return parseResult(result)
}

// Close releases any resources held by the describer.
func (g *GeminiDescriber) Close() error {
	// The genai.Client doesn't require explicit closing in the current SDK
	return nil
}

// decodeImage checks that data is a real image and returns its MIME type.
func decodeImage(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return "image/" + format, nil
	}
	// No webp decoder is registered; accept it on its signature.
	if mimeType := imagerelay.DetectMIMEType(data); mimeType == "image/webp" {
		return mimeType, nil
	}
	return "", fmt.Errorf("%w: %v", imagerelay.ErrUndecodableImage, err)
}

// parseResult extracts the response text or the refusal reason.
func parseResult(result *genai.GenerateContentResponse) (*imagerelay.DescriptionResult, error) {
	if result == nil {
		return nil, imagerelay.NewProviderError(Info.Name, 0, nil, errors.New("empty response from model"))
	}

	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
		reason := string(fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			reason += ": " + fb.BlockReasonMessage
		}
		return nil, &imagerelay.ContentBlockedError{Provider: Info.Name, Reason: reason}
	}

	if len(result.Candidates) == 0 {
		return nil, imagerelay.NewProviderError(Info.Name, 0, nil, errors.New("no candidates in response"))
	}

	var text strings.Builder
	for _, candidate := range result.Candidates {
		if isBlocked(candidate.FinishReason) {
			return nil, &imagerelay.ContentBlockedError{Provider: Info.Name, Reason: string(candidate.FinishReason)}
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought || part.Text == "" {
				continue
			}
			text.WriteString(part.Text)
		}
		// Only the first candidate with content is used
		if text.Len() > 0 {
			break
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return nil, imagerelay.NewProviderError(Info.Name, 0, nil, errors.New("response contained no text"))
	}

	return &imagerelay.DescriptionResult{Text: text.String()}, nil
}

func isBlocked(reason genai.FinishReason) bool {
	switch reason {
	case genai.FinishReasonSafety,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonBlocklist,
		genai.FinishReasonSPII:
		return true
	}
	return false
}

// mapError converts a Gemini API error into the package's typed errors.
// RESOURCE_EXHAUSTED without a code is reported as 429.
func mapError(err error, model string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return imagerelay.NewProviderError(Info.Name, 0, nil, fmt.Errorf("%s: %w", model, err))
	}

	status := apiErr.Code
	if status == 0 && apiErr.Status == "RESOURCE_EXHAUSTED" {
		status = http.StatusTooManyRequests
	}
	return imagerelay.NewProviderError(Info.Name, status, []byte(apiErr.Message), fmt.Errorf("%s: %w", model, err))
}
