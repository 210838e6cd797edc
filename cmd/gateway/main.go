// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the DealGate AI gateway.
//
// The gateway fronts every AI feature on the underwriting platform:
// - Enforces consent, rate limits, and prompt security on each request
// - Parses deal descriptions into the structured deal schema
// - Extracts and reconciles financials across deal documents
// - Tracks field-level data lineage and verification state
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (required)
//	REDIS_URL - Redis URL for distributed rate limiting (optional)
//	JWT_SECRET - Secret for JWT token validation
//	AI_LLM_PROVIDER - LLM provider: bedrock, anthropic, or mock
package main

import (
	"dealgate/platform/gateway"
)

func main() {
	gateway.Run()
}
