// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"fmt"
	"time"

	"dealgate/platform/config"
)

// NewProviderFromConfig builds the configured provider. When an API key
// secret ARN is set it is resolved through Secrets Manager before any
// key from the environment is considered.
func NewProviderFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.LLMProvider {
	case "bedrock":
		return NewBedrockProvider(ctx, cfg.LLMRegion, cfg.LLMModel)

	case "anthropic":
		apiKey := cfg.LLMAPIKey
		if cfg.LLMAPIKeySecretARN != "" {
			resolver, err := NewSecretResolver(ctx, cfg.LLMRegion)
			if err != nil {
				return nil, err
			}
			apiKey, err = resolver.ResolveAPIKey(ctx, cfg.LLMAPIKeySecretARN)
			if err != nil {
				return nil, err
			}
		}
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  apiKey,
			Model:   cfg.LLMModel,
			Timeout: time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		})

	case "mock":
		return NewMockProvider(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.LLMProvider)
	}
}
