// Package llm talks to the hosted language models that solve questions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alsolver/alsolver/internal/config"
	"github.com/alsolver/alsolver/internal/consts"
)

// ErrModelCall is returned for any failed generation: transport errors,
// provider errors and responses without usable text.
var ErrModelCall = errors.New("model call failed")

// Request is a prompt with an optional inline image.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

func (r Request) HasImage() bool {
	return len(r.Image) > 0
}

type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// NewClient returns the text model selected by LLM_PROVIDER.
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm: config is required")
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	switch strings.ToLower(cfg.LLMProvider) {
	case consts.ProviderGroq, consts.ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.LLMEndpoint,
			Token:       cfg.LLMToken,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			HTTPClient:  httpClient,
		})
	case consts.ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.LLMTemperature,
			HTTPClient:  httpClient,
		})
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.LLMProvider)
	}
}

// NewVisionClient returns the Gemini model used by the vision photo strategy.
func NewVisionClient(ctx context.Context, cfg *config.Config) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm: config is required")
	}
	return NewGeminiClient(ctx, GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: cfg.LLMTemperature,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
	})
}

func modelError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrModelCall, provider, err)
}

func emptyResponse(provider, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrModelCall, provider, reason)
}
