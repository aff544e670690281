// Package openai provides a Describer backed by an OpenAI-compatible chat
// completion API.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mhpenta/imagerelay"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultModel accepts both text and image content parts.
	DefaultModel = "gpt-4o"

	// MaxTokens caps the length of a description.
	MaxTokens = 300
)

// Info is the provider metadata registered for OpenAI.
var Info = imagerelay.ProviderInfo{
	Name:         "openai",
	DefaultModel: DefaultModel,
	AcceptsImage: true,
	AcceptsText:  true,
	RateLimits: imagerelay.RateLimits{
		RequestsPerMinute: 500,
	},
}

// Config holds the settings of an OpenAI describer.
type Config struct {
	APIKey string

	// BaseURL overrides the API root (OPENAI_API_ENDPOINT)
	BaseURL string

	// Model defaults to DefaultModel
	Model string

	HTTPClient *http.Client
}

// Describer sends a single user message per request.
type Describer struct {
	oac   *oagc.Client
	model string
}

// Ensure Describer implements imagerelay.Describer.
var _ imagerelay.Describer = (*Describer)(nil)

// New creates an OpenAI describer. A missing API key is a configuration
// error. The SDK's own retries are disabled.
func New(cfg Config) (*Describer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &imagerelay.ConfigError{Identifier: Info.Name, Variable: "OPENAI_API_KEY"}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Describer{
		oac:   oagc.NewClient(opts...),
		model: model,
	}, nil
}

func (d *Describer) Name() string { return Info.Name }

func (d *Describer) Info() imagerelay.ProviderInfo { return Info }

func (d *Describer) Model() string { return d.model }

// Describe sends the prompt, and the image as an inline data URL when
// present, as one user message.
func (d *Describer) Describe(ctx context.Context, req imagerelay.DescriptionRequest) (*imagerelay.DescriptionResult, error) {
	prompt := req.PromptOrDefault()

	var msg oagc.ChatCompletionMessageParamUnion
	if req.HasImage() {
		msg = oagc.UserMessageParts(
			oagc.TextPart(prompt),
			oagc.ImagePart(req.Image.DataURL()),
		)
	} else {
		// UserMessage would wrap the prompt in a text part; send it as a plain string
		msg = oagc.ChatCompletionUserMessageParam{
			Role:    oagc.F(oagc.ChatCompletionUserMessageParamRoleUser),
			Content: oagc.Raw[[]oagc.ChatCompletionContentPartUnionParam](prompt),
		}
	}

	params := oagc.ChatCompletionNewParams{
		Messages:  oagc.F([]oagc.ChatCompletionMessageParamUnion{msg}),
		Model:     oagc.F(oagc.ChatModel(d.model)),
		MaxTokens: oagc.Int(MaxTokens),
	}

	resp, err := d.oac.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, imagerelay.NewProviderError(Info.Name, 0, []byte(resp.JSON.RawJSON()), errors.New("no choices in response"))
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, &imagerelay.ContentBlockedError{Provider: Info.Name, Reason: choice.Message.Refusal}
	}
	if string(choice.FinishReason) == "content_filter" {
		return nil, &imagerelay.ContentBlockedError{Provider: Info.Name, Reason: "content_filter"}
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, imagerelay.NewProviderError(Info.Name, 0, []byte(resp.JSON.RawJSON()), errors.New("empty message content"))
	}

	return &imagerelay.DescriptionResult{Text: choice.Message.Content}, nil
}

// mapError converts SDK errors into *imagerelay.ProviderError, keeping the
// HTTP status when one was received.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *oagc.Error
	if errors.As(err, &apiErr) {
		return imagerelay.NewProviderError(Info.Name, apiErr.StatusCode, []byte(apiErr.Message), err)
	}
	return imagerelay.NewProviderError(Info.Name, 0, nil, err)
}

func (d *Describer) Close() error {
	return nil
}
