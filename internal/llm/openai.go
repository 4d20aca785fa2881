package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/alsolver/alsolver/internal/logger"
)

type OpenAIConfig struct {
	BaseURL     string
	Token       string
	Model       string
	Temperature float32
	HTTPClient  *http.Client
}

// OpenAIClient speaks the OpenAI chat-completions protocol, which Groq also serves.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("llm: API token is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.HasImage() {
		mime := req.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
				},
			},
		}
	} else {
		msg.Content = req.Prompt
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", modelError("openai", err)
	}

	logger.Debug("Chat completion response", map[string]interface{}{
		"model":             resp.Model,
		"choices":           len(resp.Choices),
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	})

	if len(resp.Choices) == 0 {
		return "", emptyResponse("openai", "no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", emptyResponse("openai", "empty message content")
	}

	return content, nil
}
