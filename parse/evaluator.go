// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"fmt"
	"math"
)

const (
	missingFieldPenalty   = 25
	numericFlagPenalty    = 15
	provenanceFlagPenalty = 20

	ltvReconcileTolerance = 0.05
)

// Evaluate grades a coerced result and its provenance rows. Critical
// flags name missing required fields and force failure regardless of
// the sub-scores.
func Evaluate(result map[string]Value, provenances []Provenance) *EvaluatorReport {
	report := &EvaluatorReport{
		SchemaCompleteness: 100,
		NumericConsistency: 100,
		Provenance:         100,
	}

	for _, field := range RequiredFields() {
		if !requiredPresent(result[field]) {
			report.SchemaCompleteness -= missingFieldPenalty
			report.CriticalFlags = append(report.CriticalFlags, "missing "+field)
		}
	}
	if report.SchemaCompleteness < 0 {
		report.SchemaCompleteness = 0
	}

	report.NumericFlags = numericFlags(result)
	report.NumericConsistency -= numericFlagPenalty * len(report.NumericFlags)
	if report.NumericConsistency < 0 {
		report.NumericConsistency = 0
	}

	report.ProvenanceFlags = provenanceFlags(provenances)
	report.Provenance -= provenanceFlagPenalty * len(report.ProvenanceFlags)
	if report.Provenance < 0 {
		report.Provenance = 0
	}

	return report
}

// requiredPresent treats the literal string "unknown" as present: the
// model answered, there is just nothing to extract.
func requiredPresent(v Value) bool {
	if v.Text != nil {
		return true
	}
	return v.Number != nil
}

func numericFlags(result map[string]Value) []string {
	var flags []string

	for _, spec := range dealSchema {
		if spec.Kind != KindNumber {
			continue
		}
		if v := result[spec.Path]; v.Number != nil && *v.Number < 0 {
			flags = append(flags, fmt.Sprintf("negative %s", spec.Path))
		}
	}

	if v := result["cap_rate"]; v.Number != nil && (*v.Number < 0 || *v.Number > 1.5) {
		flags = append(flags, "cap_rate out of range")
	}
	if v := result["ltv"]; v.Number != nil && (*v.Number < 0 || *v.Number > 2) {
		flags = append(flags, "ltv out of range")
	}

	price := result["purchase_price"].Number
	ltv := result["ltv"].Number
	senior := result["senior_debt"].Number
	mezz := result["mezzanine_debt"].Number
	if price != nil && ltv != nil && senior != nil && mezz != nil && *price != 0 {
		impliedLTV := (*senior + *mezz) / *price
		if math.Abs(impliedLTV-*ltv) > ltvReconcileTolerance {
			flags = append(flags, "ltv inconsistent with debt and price")
		}
	}

	return flags
}

func provenanceFlags(provenances []Provenance) []string {
	var flags []string
	for _, p := range provenances {
		if EvidenceDoc(p.FieldPath) == "" {
			continue
		}
		if p.Source != SourceDoc && p.EvidenceNeeded == "" {
			flags = append(flags, p.FieldPath+" lacks evidence requirement")
		}
		if p.Confidence == 0 && !p.Value.IsNull() {
			flags = append(flags, p.FieldPath+" missing confidence")
		}
	}
	return flags
}

// BuildProvenance tags every declared field with its default AI origin.
// Sensitive numeric fields that did not come from a document carry the
// document type that must eventually back them.
func BuildProvenance(sessionID string, result map[string]Value, provenances *[]Provenance) {
	for _, spec := range dealSchema {
		v := result[spec.Path]
		confidence := 0.6
		if v.IsNull() {
			confidence = 0
		}
		p := Provenance{
			SessionID:  sessionID,
			FieldPath:  spec.Path,
			Value:      v,
			Source:     SourceAI,
			Confidence: confidence,
			Rationale:  "Extracted from input text",
		}
		if doc := EvidenceDoc(spec.Path); doc != "" {
			p.EvidenceNeeded = doc
		}
		*provenances = append(*provenances, p)
	}
}
