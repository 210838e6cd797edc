// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package parse turns free-form deal text into a validated, provenance
// tagged structure via a two-attempt LLM pipeline with an evaluator
// grading every result.
package parse

import (
	"encoding/json"
	"time"
)

// Session statuses. A session is created PENDING and moves exactly once
// to a terminal status.
const (
	StatusPending          = "PENDING"
	StatusOK               = "OK"
	StatusEvalFailed       = "EVAL_FAILED"
	StatusValidationFailed = "VALIDATION_FAILED"
	StatusProviderError    = "PROVIDER_ERROR"
)

// Provenance sources.
const (
	SourceAI    = "AI"
	SourceDoc   = "DOC"
	SourceHuman = "HUMAN"
)

// Prompt variants for the two-attempt protocol.
const (
	VariantBase         = "BASE"
	VariantStrictRepair = "STRICT_REPAIR"
)

// Session records one parse attempt end to end.
type Session struct {
	ID                     string           `json:"id"`
	UserID                 string           `json:"user_id,omitempty"`
	InputText              string           `json:"input_text"`
	InputSource            string           `json:"input_source"`
	Provider               string           `json:"provider"`
	Model                  string           `json:"model"`
	PromptVersion          string           `json:"prompt_version"`
	SchemaVersion          string           `json:"schema_version"`
	Status                 string           `json:"status"`
	Attempts               int              `json:"attempts"`
	RawResponses           []string         `json:"raw_responses"`
	ParsedResult           map[string]Value `json:"parsed_result,omitempty"`
	Report                 *EvaluatorReport `json:"evaluator_report,omitempty"`
	LatencyMs              int64            `json:"latency_ms"`
	ForceAccepted          bool             `json:"force_accepted"`
	ForceAcceptedRationale string           `json:"force_accepted_rationale,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	CompletedAt            *time.Time       `json:"completed_at,omitempty"`
}

// Value is one coerced field value: a finite number, a trimmed string,
// or null. Exactly one of Number/Text is set when not null.
type Value struct {
	Number *float64 `json:"number,omitempty"`
	Text   *string  `json:"text,omitempty"`
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.Number == nil && v.Text == nil }

// MarshalJSON renders the underlying scalar, not the wrapper.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Number != nil {
		return json.Marshal(*v.Number)
	}
	if v.Text != nil {
		return json.Marshal(*v.Text)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a number, string, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		v.Number = &num
		v.Text = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.Text = &s
		v.Number = nil
		return nil
	}
	v.Number = nil
	v.Text = nil
	return nil
}

// NumberValue wraps a float.
func NumberValue(f float64) Value { return Value{Number: &f} }

// TextValue wraps a string.
func TextValue(s string) Value { return Value{Text: &s} }

// NullValue is the absent value.
func NullValue() Value { return Value{} }

// Provenance is one field's origin record within a session.
type Provenance struct {
	SessionID      string    `json:"session_id"`
	FieldPath      string    `json:"field_path"`
	Value          Value     `json:"value"`
	Source         string    `json:"source"`
	Confidence     float64   `json:"confidence"`
	Rationale      string    `json:"rationale"`
	EvidenceNeeded string    `json:"evidence_needed,omitempty"`
	ArtifactID     string    `json:"artifact_id,omitempty"`
	AsOf           time.Time `json:"as_of"`
}

// EvaluatorReport grades a parsed deal along three axes.
type EvaluatorReport struct {
	SchemaCompleteness int      `json:"schema_completeness"`
	NumericConsistency int      `json:"numeric_consistency"`
	Provenance         int      `json:"provenance"`
	NumericFlags       []string `json:"numeric_flags,omitempty"`
	ProvenanceFlags    []string `json:"provenance_flags,omitempty"`
	CriticalFlags      []string `json:"critical_flags,omitempty"`
}

// Passes reports whether every sub-score clears the floor and no
// critical flag is present.
func (r *EvaluatorReport) Passes(minScore int) bool {
	return len(r.CriticalFlags) == 0 &&
		r.SchemaCompleteness >= minScore &&
		r.NumericConsistency >= minScore &&
		r.Provenance >= minScore
}
