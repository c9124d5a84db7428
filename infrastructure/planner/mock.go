package planner

import (
	"context"
	"sync"
)

// MockResponse is one canned reply of a MockProvider.
type MockResponse struct {
	Content string
	Err     error
}

// MockProvider returns a predefined sequence of replies for testing and
// offline runs. Once the sequence is spent the last reply repeats.
type MockProvider struct {
	responses []MockResponse
	index     int
	requests  []CompletionRequest
	mu        sync.Mutex
}

// NewMockProvider creates a mock provider with the given replies.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return "mock"
}

// Complete returns the next reply in the sequence.
func (p *MockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)

	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}
	if len(p.responses) == 0 {
		return CompletionResponse{}, ErrEmptyCompletion
	}

	i := p.index
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	} else {
		p.index++
	}

	r := p.responses[i]
	if r.Err != nil {
		return CompletionResponse{}, r.Err
	}
	return CompletionResponse{
		ID:      "mock",
		Model:   req.Model,
		Message: Message{Role: RoleAssistant, Content: r.Content},
	}, nil
}

// Requests returns the requests received so far.
func (p *MockProvider) Requests() []CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// AddResponse appends a reply to the sequence.
func (p *MockProvider) AddResponse(r MockResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, r)
}
