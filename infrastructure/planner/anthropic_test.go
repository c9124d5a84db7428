package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicProvider_Name(t *testing.T) {
	t.Parallel()

	if got := NewAnthropicProvider(AnthropicConfig{APIKey: "k"}).Name(); got != "anthropic" {
		t.Errorf("Name() = %s, want anthropic", got)
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Path = %s, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("x-api-key header not set correctly")
		}

		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "claude-test" {
			t.Errorf("model = %s, want claude-test", body.Model)
		}
		if body.MaxTokens != 1024 {
			t.Errorf("max_tokens = %d, want default 1024", body.MaxTokens)
		}
		if len(body.System) != 1 || body.System[0].Text != "be brief" {
			t.Errorf("system = %+v", body.System)
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", body.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"action\": \"done\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "claude-test",
	})

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.ID != "msg_1" {
		t.Errorf("ID = %s, want msg_1", resp.ID)
	}
	if resp.Message.Content != `{"action": "done"}` {
		t.Errorf("Content = %s", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", resp.Usage.TotalTokens)
	}
}

func TestAnthropicProvider_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "bad key"}}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider(AnthropicConfig{APIKey: "bad", BaseURL: server.URL, Model: "claude-test"})
	if _, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("Complete() expected error for 401")
	}
}
