// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package llm provides the model-provider abstraction the gateway calls
// after input guards pass. Providers are interchangeable behind the
// Provider interface; the factory picks one from configuration.
package llm

import (
	"errors"
	"time"
)

// Sentinel errors returned by providers.
var (
	// ErrProviderUnavailable indicates the upstream model could not be
	// reached or returned a server-side failure.
	ErrProviderUnavailable = errors.New("llm provider unavailable")

	// ErrUnknownProvider indicates the configured provider name has no
	// registered implementation.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// CompletionRequest carries one sanitized prompt to a provider.
type CompletionRequest struct {
	// Prompt is the sanitized user input.
	Prompt string `json:"prompt"`

	// SystemPrompt sets model behavior. Optional.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens caps the response length. 0 means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Negative means provider default.
	Temperature float64 `json:"temperature,omitempty"`

	// Model overrides the provider's configured default model.
	Model string `json:"model,omitempty"`

	// StopSequences end generation early when emitted.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// CompletionResponse is the normalized provider result.
type CompletionResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	Usage        UsageStats    `json:"usage"`
	Latency      time.Duration `json:"latency"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// UsageStats tracks token counts for cost attribution.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// HealthStatus reports provider reachability.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}
