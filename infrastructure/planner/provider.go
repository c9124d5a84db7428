package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion indicates a provider returned no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Name returns the provider name for logging.
	Name() string
}

// CompletionRequest represents a chat completion request.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content,omitempty"`
}

// CompletionResponse represents a chat completion response.
type CompletionResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Message Message   `json:"message"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError represents an API error response.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Type + ": " + e.Message + " (" + e.Code + ")"
	}
	return e.Type + ": " + e.Message
}

// ProviderConfig contains common provider configuration.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// SendOptions tunes a single Send.
type SendOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Send runs one system+user exchange and returns the reply text. Transport
// errors, API errors and empty replies are all returned as errors.
func Send(ctx context.Context, p Provider, system, prompt string, opts SendOptions) (string, error) {
	var messages []Message
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	resp, err := p.Complete(ctx, CompletionRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", p.Name(), err)
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("%s: %w", p.Name(), ErrEmptyCompletion)
	}
	return resp.Message.Content, nil
}
