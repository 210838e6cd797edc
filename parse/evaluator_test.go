// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeDeal() map[string]Value {
	return map[string]Value{
		"name":           TextValue("Maple Court"),
		"asset_type":     TextValue("multifamily"),
		"asset_address":  TextValue("12 Maple St, Austin TX"),
		"purchase_price": NumberValue(12500000),
		"noi":            NumberValue(1080000),
		"cap_rate":       NumberValue(0.0864),
		"ltv":            NumberValue(0.75),
		"senior_debt":    NumberValue(9000000),
		"mezzanine_debt": NumberValue(375000),
	}
}

func TestEvaluate_CleanDealPasses(t *testing.T) {
	result := completeDeal()
	var provs []Provenance
	BuildProvenance("s1", result, &provs)

	report := Evaluate(result, provs)

	assert.Equal(t, 100, report.SchemaCompleteness)
	assert.Equal(t, 100, report.NumericConsistency)
	assert.Equal(t, 100, report.Provenance)
	assert.Empty(t, report.CriticalFlags)
	assert.True(t, report.Passes(70))
}

func TestEvaluate_MissingRequiredIsCritical(t *testing.T) {
	result := completeDeal()
	result["asset_address"] = NullValue()
	var provs []Provenance
	BuildProvenance("s1", result, &provs)

	report := Evaluate(result, provs)

	assert.Equal(t, []string{"missing asset_address"}, report.CriticalFlags)
	assert.LessOrEqual(t, report.SchemaCompleteness, 75)
	assert.False(t, report.Passes(70))
}

func TestEvaluate_UnknownCountsAsPresent(t *testing.T) {
	result := completeDeal()
	result["asset_address"] = TextValue("unknown")

	report := Evaluate(result, nil)
	assert.Empty(t, report.CriticalFlags)
	assert.Equal(t, 100, report.SchemaCompleteness)
}

func TestEvaluate_NumericFlags(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string]Value)
		wantFlag string
	}{
		{
			name:     "negative value",
			mutate:   func(m map[string]Value) { m["noi"] = NumberValue(-50000) },
			wantFlag: "negative noi",
		},
		{
			name:     "cap rate out of range",
			mutate:   func(m map[string]Value) { m["cap_rate"] = NumberValue(8.64) },
			wantFlag: "cap_rate out of range",
		},
		{
			name:     "ltv out of range",
			mutate:   func(m map[string]Value) { m["ltv"] = NumberValue(2.5) },
			wantFlag: "ltv out of range",
		},
		{
			name: "ltv inconsistent with debt",
			mutate: func(m map[string]Value) {
				m["senior_debt"] = NumberValue(2000000)
				m["mezzanine_debt"] = NumberValue(0)
			},
			wantFlag: "ltv inconsistent with debt and price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := completeDeal()
			tt.mutate(result)

			report := Evaluate(result, nil)
			assert.Contains(t, report.NumericFlags, tt.wantFlag)
			assert.Less(t, report.NumericConsistency, 100)
		})
	}
}

func TestEvaluate_ScoresFloorAtZero(t *testing.T) {
	result := map[string]Value{}
	report := Evaluate(result, nil)
	assert.Equal(t, 100-3*missingFieldPenalty, report.SchemaCompleteness)
	assert.GreaterOrEqual(t, report.SchemaCompleteness, 0)
}

func TestEvaluate_ProvenanceFlags(t *testing.T) {
	provs := []Provenance{
		{FieldPath: "noi", Value: NumberValue(1000000), Source: SourceAI, Confidence: 0.6},
		{FieldPath: "cap_rate", Value: NumberValue(0.08), Source: SourceAI, Confidence: 0.6, EvidenceNeeded: "Appraisal"},
		{FieldPath: "name", Value: TextValue("Oak"), Source: SourceAI, Confidence: 0.6},
	}

	report := Evaluate(completeDeal(), provs)

	// noi is sensitive, non-DOC, and lacks an evidence requirement.
	assert.Contains(t, report.ProvenanceFlags, "noi lacks evidence requirement")
	assert.Equal(t, 80, report.Provenance)
}

func TestBuildProvenance(t *testing.T) {
	result := completeDeal()
	var provs []Provenance
	BuildProvenance("s1", result, &provs)

	require.Len(t, provs, len(Schema()))

	byField := map[string]Provenance{}
	for _, p := range provs {
		byField[p.FieldPath] = p
	}

	noi := byField["noi"]
	assert.Equal(t, SourceAI, noi.Source)
	assert.Equal(t, 0.6, noi.Confidence)
	assert.Equal(t, "T12", noi.EvidenceNeeded)
	assert.Equal(t, "Extracted from input text", noi.Rationale)

	// Null fields carry zero confidence.
	vacancy := byField["vacancy_rate"]
	assert.Equal(t, 0.0, vacancy.Confidence)
	assert.True(t, vacancy.Value.IsNull())

	// Non-sensitive fields need no evidence.
	assert.Empty(t, byField["name"].EvidenceNeeded)
	assert.Equal(t, "PSA", byField["purchase_price"].EvidenceNeeded)
	assert.Equal(t, "Debt Schedule", byField["ltv"].EvidenceNeeded)
	assert.Equal(t, "Appraisal", byField["cap_rate"].EvidenceNeeded)
}
