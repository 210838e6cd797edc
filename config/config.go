// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the gateway's policy tunables from the environment.
// Values are bound once at startup and treated as read-only afterwards.
package config

import (
	"os"
	"strconv"
)

// Config holds every recognized gateway option. Zero-configuration
// deployments get the documented defaults.
type Config struct {
	// Security pipeline
	SecurityEnabled         bool
	JailbreakBlockThreshold float64
	JailbreakWarnThreshold  float64
	MaxInputLength          int
	OutputValidationEnabled bool
	SecurityPatternsFile    string

	// Consent engine
	ConsentEnabled          bool
	ConsentGracePeriodDays  int
	ConsentExpirationMonths int
	CurrentPolicyVersion    string

	// Rate limiting
	UserPerMinute    int
	UserPerDay       int
	OrgPerMinute     int
	OrgPerDay        int
	RateLimitBackend string // "memory" or "redis"
	RedisURL         string

	// Extraction & evaluation
	ConflictVarianceThreshold float64
	LowConfidenceThreshold    float64
	EvalMinScore              int

	// LLM provider
	LLMProvider        string // "bedrock", "anthropic", or "mock"
	LLMModel           string
	LLMRegion          string
	LLMAPIKey          string
	LLMAPIKeySecretARN string
	LLMTimeoutSeconds  int

	// Host wiring
	DatabaseURL string
	ListenAddr  string
	JWTSecret   string
}

// Load reads the full option set from the environment, applying defaults
// for anything absent.
func Load() *Config {
	return &Config{
		SecurityEnabled:         getEnvBool("AI_SECURITY_ENABLED", true),
		JailbreakBlockThreshold: getEnvFloat("AI_JAILBREAK_BLOCK_THRESHOLD", 0.8),
		JailbreakWarnThreshold:  getEnvFloat("AI_JAILBREAK_WARN_THRESHOLD", 0.5),
		MaxInputLength:          getEnvInt("AI_MAX_INPUT_LENGTH", 10000),
		OutputValidationEnabled: getEnvBool("AI_OUTPUT_VALIDATION_ENABLED", true),
		SecurityPatternsFile:    getEnv("AI_SECURITY_PATTERNS_FILE", ""),

		ConsentEnabled:          getEnvBool("AI_CONSENT_ENABLED", true),
		ConsentGracePeriodDays:  getEnvInt("AI_CONSENT_GRACE_PERIOD_DAYS", 14),
		ConsentExpirationMonths: getEnvInt("AI_CONSENT_EXPIRATION_MONTHS", 12),
		CurrentPolicyVersion:    getEnv("AI_CONSENT_POLICY_VERSION", "1.0.0"),

		UserPerMinute:    getEnvInt("AI_RATE_LIMIT_USER_PER_MINUTE", 20),
		UserPerDay:       getEnvInt("AI_RATE_LIMIT_USER_PER_DAY", 200),
		OrgPerMinute:     getEnvInt("AI_RATE_LIMIT_ORG_PER_MINUTE", 500),
		OrgPerDay:        getEnvInt("AI_RATE_LIMIT_ORG_PER_DAY", 5000),
		RateLimitBackend: getEnv("AI_RATE_LIMIT_BACKEND", "memory"),
		RedisURL:         getEnv("REDIS_URL", ""),

		ConflictVarianceThreshold: getEnvFloat("AI_CONFLICT_VARIANCE_THRESHOLD", 0.05),
		LowConfidenceThreshold:    getEnvFloat("AI_LOW_CONFIDENCE_THRESHOLD", 0.7),
		EvalMinScore:              getEnvInt("AI_EVAL_MIN_SCORE", 70),

		LLMProvider:        getEnv("AI_LLM_PROVIDER", "bedrock"),
		LLMModel:           getEnv("AI_LLM_MODEL", ""),
		LLMRegion:          getEnv("AI_LLM_REGION", "us-east-1"),
		LLMAPIKey:          getEnv("AI_LLM_API_KEY", ""),
		LLMAPIKeySecretARN: getEnv("AI_LLM_API_KEY_SECRET_ARN", ""),
		LLMTimeoutSeconds:  getEnvInt("AI_LLM_TIMEOUT_SECONDS", 60),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
