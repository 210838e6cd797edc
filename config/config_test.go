// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.True(t, cfg.SecurityEnabled)
	assert.Equal(t, 0.8, cfg.JailbreakBlockThreshold)
	assert.Equal(t, 0.5, cfg.JailbreakWarnThreshold)
	assert.Equal(t, 10000, cfg.MaxInputLength)
	assert.True(t, cfg.OutputValidationEnabled)

	assert.True(t, cfg.ConsentEnabled)
	assert.Equal(t, 14, cfg.ConsentGracePeriodDays)
	assert.Equal(t, 12, cfg.ConsentExpirationMonths)
	assert.Equal(t, "1.0.0", cfg.CurrentPolicyVersion)

	assert.Equal(t, 20, cfg.UserPerMinute)
	assert.Equal(t, 200, cfg.UserPerDay)
	assert.Equal(t, 500, cfg.OrgPerMinute)
	assert.Equal(t, 5000, cfg.OrgPerDay)
	assert.Equal(t, "memory", cfg.RateLimitBackend)

	assert.Equal(t, 0.05, cfg.ConflictVarianceThreshold)
	assert.Equal(t, 0.7, cfg.LowConfidenceThreshold)
	assert.Equal(t, 70, cfg.EvalMinScore)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AI_SECURITY_ENABLED", "false")
	t.Setenv("AI_JAILBREAK_BLOCK_THRESHOLD", "0.95")
	t.Setenv("AI_RATE_LIMIT_USER_PER_MINUTE", "2")
	t.Setenv("AI_CONSENT_POLICY_VERSION", "2.1.0")
	t.Setenv("AI_EVAL_MIN_SCORE", "85")

	cfg := Load()

	assert.False(t, cfg.SecurityEnabled)
	assert.Equal(t, 0.95, cfg.JailbreakBlockThreshold)
	assert.Equal(t, 2, cfg.UserPerMinute)
	assert.Equal(t, "2.1.0", cfg.CurrentPolicyVersion)
	assert.Equal(t, 85, cfg.EvalMinScore)
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("AI_MAX_INPUT_LENGTH", "not-a-number")
	t.Setenv("AI_JAILBREAK_WARN_THRESHOLD", "lots")
	t.Setenv("AI_CONSENT_ENABLED", "yep")

	cfg := Load()

	assert.Equal(t, 10000, cfg.MaxInputLength)
	assert.Equal(t, 0.5, cfg.JailbreakWarnThreshold)
	assert.True(t, cfg.ConsentEnabled)
}
