package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestNewOpenAIProvider_Name(t *testing.T) {
	t.Parallel()

	if got := NewOpenAIProvider(OpenAIConfig{APIKey: "k"}).Name(); got != "openai" {
		t.Errorf("Name() = %s, want openai", got)
	}
	if got := NewOpenAIProvider(OpenAIConfig{Name: "openrouter"}).Name(); got != "openrouter" {
		t.Errorf("Name() = %s, want openrouter", got)
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization header not set correctly")
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("Model = %s, want gpt-4o", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1].Content != "Hello" {
			t.Errorf("Messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: RoleAssistant, Content: `{"steps": ["a"]}`},
			}},
			Usage: openai.Usage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
		Model:   "gpt-4o",
	})

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "system"},
			{Role: RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.ID != "chatcmpl-123" {
		t.Errorf("ID = %s, want chatcmpl-123", resp.ID)
	}
	if resp.Message.Content != `{"steps": ["a"]}` {
		t.Errorf("Content = %s", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestOpenAIProvider_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid request", "type": "invalid_request_error", "code": "bad_model"}}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Complete() error = %v, want *APIError", err)
	}
	if apiErr.Message != "Invalid request" || apiErr.Code != "bad_model" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	if _, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	}); err == nil {
		t.Fatal("Complete() expected error for empty choices")
	}
}
