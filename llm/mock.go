// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"sync"
	"time"
)

// MockProvider returns canned responses for local development and tests.
// Responses are matched FIFO; when the queue is empty it echoes a fixed
// acknowledgment so no call ever fails.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []CompletionRequest
}

// NewMockProvider creates a provider that replays the given responses.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// FailWith makes every Complete call return err.
func (p *MockProvider) FailWith(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// Calls returns a copy of the requests seen so far.
func (p *MockProvider) Calls() []CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompletionRequest(nil), p.calls...)
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		p.mu.Unlock()
		return nil, p.err
	}

	content := "mock response"
	if len(p.responses) > 0 {
		content = p.responses[0]
		p.responses = p.responses[1:]
	}
	p.mu.Unlock()

	return &CompletionResponse{
		Content: content,
		Model:   "mock-model",
		Usage: UsageStats{
			PromptTokens:     len(req.Prompt) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(req.Prompt) + len(content)) / 4,
		},
		Latency:      time.Millisecond,
		FinishReason: "stop",
	}, nil
}

func (p *MockProvider) HealthCheck(_ context.Context) *HealthStatus {
	return &HealthStatus{Healthy: true}
}
