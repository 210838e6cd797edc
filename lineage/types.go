// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package lineage keeps the append-only per-field history of a deal
// model and the human verification state of every tracked value.
package lineage

import (
	"time"

	"dealgate/platform/extraction"
)

// Source types for a tracked value.
const (
	SourceManual      = "MANUAL"
	SourceDocument    = "DOCUMENT"
	SourceFormula     = "FORMULA"
	SourceAIExtracted = "AI_EXTRACTED"
	SourceImported    = "IMPORTED"
)

// Verification statuses.
const (
	StatusUnverified    = "UNVERIFIED"
	StatusAIExtracted   = "AI_EXTRACTED"
	StatusHumanVerified = "HUMAN_VERIFIED"
	StatusNeedsReview   = "NEEDS_REVIEW"
)

// historyCap bounds the stored history; older entries fall off.
const historyCap = 10

// HistoryEntry is one superseded value. Entries are never mutated.
type HistoryEntry struct {
	Value              extraction.FieldValue `json:"value"`
	UpdatedAt          time.Time             `json:"updatedAt"`
	SourceType         string                `json:"sourceType"`
	VerificationStatus string                `json:"verificationStatus"`
}

// Record is the lineage of one (deal, model, field).
type Record struct {
	DealID               string                `json:"dealId"`
	ModelID              string                `json:"modelId"`
	Field                string                `json:"field"`
	CurrentValue         extraction.FieldValue `json:"currentValue"`
	SourceType           string                `json:"sourceType"`
	SourceDocID          string                `json:"sourceDocId,omitempty"`
	SourceField          string                `json:"sourceField,omitempty"`
	ExtractedAt          *time.Time            `json:"extractedAt,omitempty"`
	ExtractionConfidence *float64              `json:"extractionConfidence,omitempty"`
	VerificationStatus   string                `json:"verificationStatus"`
	VerifiedBy           string                `json:"verifiedBy,omitempty"`
	VerifiedAt           *time.Time            `json:"verifiedAt,omitempty"`
	VerificationNotes    string                `json:"verificationNotes,omitempty"`
	History              []HistoryEntry        `json:"history"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

// TrackInput is one observed value for a field.
type TrackInput struct {
	Value                extraction.FieldValue `json:"value"`
	SourceType           string                `json:"sourceType"`
	SourceDocID          string                `json:"sourceDocId,omitempty"`
	SourceField          string                `json:"sourceField,omitempty"`
	ExtractionConfidence *float64              `json:"extractionConfidence,omitempty"`
}

// Suggestion is one field the ledger recommends verifying next.
type Suggestion struct {
	Field              string  `json:"field"`
	Score              float64 `json:"score"`
	Reason             string  `json:"reason"`
	VerificationStatus string  `json:"verificationStatus"`
	Confidence         float64 `json:"confidence"`
}
