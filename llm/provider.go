// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package llm

import "context"

// Provider is the unified interface for model backends.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider identifier used in logs and audit rows.
	Name() string

	// Complete generates a completion for the given request. The context
	// carries cancellation and the per-request timeout.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// HealthCheck verifies the provider is operational.
	HealthCheck(ctx context.Context) *HealthStatus
}
