package planner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible endpoints (OpenRouter, Ollama /v1).
type OpenAIProvider struct {
	name   string
	model  string
	client *openai.Client
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	Name    string // Default: openai
	APIKey  string // Required for OpenAI and OpenRouter
	BaseURL string // Default: https://api.openai.com/v1
	Model   string // e.g., "gpt-4o", "gpt-4o-mini"
	Timeout int    // Timeout in seconds (default: 120)
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) *OpenAIProvider {
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 120
	}
	cfg.HTTPClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}

	name := config.Name
	if name == "" {
		name = "openai"
	}

	return &OpenAIProvider{
		name:   name,
		model:  config.Model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete implements the Provider interface.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return CompletionResponse{}, &APIError{
				Type:    apiErr.Type,
				Message: apiErr.Message,
				Code:    fmt.Sprint(orEmpty(apiErr.Code)),
			}
		}
		return CompletionResponse{}, fmt.Errorf("request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("no choices in response")
	}

	return CompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Message: Message{
			Role:    resp.Choices[0].Message.Role,
			Content: resp.Choices[0].Message.Content,
		},
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
