// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package audit persists one record per AI request: who asked, what was
// sent, what came back, and what the guards decided. Writes are queued
// and batched so the hot path never waits on the audit table.
package audit

import "time"

// promptSummaryLimit caps the summary column; the full prompt is kept
// in its own column.
const promptSummaryLimit = 200

// SecurityContext captures the guard outcomes attached to one request.
type SecurityContext struct {
	SanitizationApplied    bool     `json:"sanitization_applied"`
	JailbreakScore         float64  `json:"jailbreak_score"`
	JailbreakPatterns      []string `json:"jailbreak_patterns,omitempty"`
	OutputValidationPassed bool     `json:"output_validation_passed"`
}

// Record is one AI request audit row.
type Record struct {
	ID               string          `json:"id"`
	RequestID        string          `json:"request_id"`
	Timestamp        time.Time       `json:"timestamp"`
	UserID           string          `json:"user_id"`
	Role             string          `json:"role"`
	OrganizationID   string          `json:"organization_id"`
	DealID           string          `json:"deal_id,omitempty"`
	Endpoint         string          `json:"endpoint"`
	PromptSummary    string          `json:"prompt_summary"`
	FullPrompt       string          `json:"full_prompt"`
	FullResponse     string          `json:"full_response,omitempty"`
	SystemPromptHash string          `json:"system_prompt_hash,omitempty"`
	ModelUsed        string          `json:"model_used,omitempty"`
	ContextFields    []string        `json:"context_fields,omitempty"`
	ResponseLength   int             `json:"response_length"`
	ValidationPassed bool            `json:"validation_passed"`
	ValidationIssues []string        `json:"validation_issues,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	Security         SecurityContext `json:"security_context"`
}

// Summarize derives the prompt summary from the full prompt.
func Summarize(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= promptSummaryLimit {
		return prompt
	}
	return string(runes[:promptSummaryLimit])
}
