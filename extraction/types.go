// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package extraction cross-references field values pulled from deal
// documents and reconciles disagreements between them. Each document
// produces one immutable extraction; the reconciler compares all
// extractions for a deal, flags fields whose spread exceeds the
// configured variance threshold, and recommends the most reliable
// source.
package extraction

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Document types, ordered by reliability for recommendation ranking.
const (
	DocT12                 = "T12"
	DocRentRoll            = "RENT_ROLL"
	DocAppraisal           = "APPRAISAL"
	DocLoanDocuments       = "LOAN_DOCUMENTS"
	DocOperatingMemorandum = "OPERATING_MEMORANDUM"
	DocBrokerAnalysis      = "BROKER_ANALYSIS"
)

// reliabilityRanks is the fixed document-reliability ordering. A T12 is
// audited operating history; broker analysis is marketing material.
var reliabilityRanks = map[string]int{
	DocT12:                 5,
	DocRentRoll:            4,
	DocAppraisal:           3,
	DocLoanDocuments:       3,
	DocOperatingMemorandum: 2,
	DocBrokerAnalysis:      1,
}

// ReliabilityRank returns the rank for a document type, 0 when unknown.
func ReliabilityRank(documentType string) int {
	return reliabilityRanks[documentType]
}

// Extraction statuses.
const (
	ExtractionCompleted = "COMPLETED"
	ExtractionFailed    = "FAILED"
)

// Conflict statuses.
const (
	ConflictOpen      = "OPEN"
	ConflictResolved  = "RESOLVED"
	ConflictDismissed = "DISMISSED"
)

// FieldValue is a JSON scalar: a number, a string, or null.
type FieldValue struct {
	Number *float64
	Text   *string
}

func NumberValue(n float64) FieldValue { return FieldValue{Number: &n} }
func TextValue(s string) FieldValue    { return FieldValue{Text: &s} }

func (v FieldValue) IsNull() bool { return v.Number == nil && v.Text == nil }

// Equal reports whether two values hold the same scalar.
func (v FieldValue) Equal(other FieldValue) bool {
	switch {
	case v.Number != nil && other.Number != nil:
		return *v.Number == *other.Number
	case v.Text != nil && other.Text != nil:
		return *v.Text == *other.Text
	default:
		return v.IsNull() && other.IsNull()
	}
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Number != nil:
		return []byte(strconv.FormatFloat(*v.Number, 'f', -1, 64)), nil
	case v.Text != nil:
		return json.Marshal(*v.Text)
	default:
		return []byte("null"), nil
	}
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = FieldValue{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v.Text = &s
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v.Number = &n
	return nil
}

// ExtractedField is one field pulled out of a document with the model's
// confidence in it.
type ExtractedField struct {
	Value      FieldValue `json:"value"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source,omitempty"`
}

// DocumentExtraction is one extraction attempt over one document.
// Immutable after write.
type DocumentExtraction struct {
	ID                string                    `json:"id"`
	DocumentID        string                    `json:"documentId"`
	DealID            string                    `json:"dealId"`
	ExtractionType    string                    `json:"extractionType"`
	ExtractedData     map[string]ExtractedField `json:"extractedData"`
	OverallConfidence float64                   `json:"overallConfidence"`
	Status            string                    `json:"status"`
	ExtractedAt       time.Time                 `json:"extractedAt"`
}

// ConflictSource is one document type's claim about a field.
type ConflictSource struct {
	Value        float64   `json:"value"`
	Confidence   float64   `json:"confidence"`
	ExtractionID string    `json:"extractionId"`
	DocumentID   string    `json:"documentId"`
	ExtractedAt  time.Time `json:"extractedAt"`
}

// FieldStats summarizes the numeric spread of a field across documents.
type FieldStats struct {
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Mean            float64 `json:"mean"`
	Median          float64 `json:"median"`
	StdDev          float64 `json:"stdDev"`
	VariancePercent float64 `json:"variancePercent"`
}

// Conflict records a disagreement between documents on one canonical
// field. At most one OPEN conflict exists per (deal, field).
type Conflict struct {
	ID                string                    `json:"id"`
	DealID            string                    `json:"dealId"`
	Field             string                    `json:"field"`
	Sources           map[string]ConflictSource `json:"sources"`
	VariancePercent   float64                   `json:"variancePercent"`
	RecommendedSource string                    `json:"recommendedSource,omitempty"`
	RecommendedValue  *float64                  `json:"recommendedValue,omitempty"`
	RecommendedReason string                    `json:"recommendedReason,omitempty"`
	Status            string                    `json:"status"`
	ResolvedValue     *FieldValue               `json:"resolvedValue,omitempty"`
	ResolvedBy        string                    `json:"resolvedBy,omitempty"`
	ResolvedAt        *time.Time                `json:"resolvedAt,omitempty"`
	ResolvedReason    string                    `json:"resolvedReason,omitempty"`
	CreatedAt         time.Time                 `json:"createdAt"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

// CrossReferenceEntry is one field's view across all documents, with
// stats when at least two numeric values exist.
type CrossReferenceEntry struct {
	Field   string                    `json:"field"`
	Sources map[string]ConflictSource `json:"sources"`
	Stats   *FieldStats               `json:"stats,omitempty"`
}

// SynthesisResult is the output of reconciling a deal's extractions.
type SynthesisResult struct {
	DealID               string                `json:"dealId"`
	CrossReferenceMatrix []CrossReferenceEntry `json:"crossReferenceMatrix"`
	Conflicts            []*Conflict           `json:"conflicts"`
	Summary              string                `json:"summary"`
}
