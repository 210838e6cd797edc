// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

// SchemaVersion tags persisted sessions with the field set they were
// parsed against.
const SchemaVersion = "deal-v1"

// FieldKind distinguishes numeric from string schema fields.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
)

// FieldSpec declares one schema field.
type FieldSpec struct {
	Path     string
	Kind     FieldKind
	Required bool
}

// dealSchema is the declared field set for a parsed deal. Coercion,
// provenance, and evaluation all iterate this list.
var dealSchema = []FieldSpec{
	{Path: "name", Kind: KindString, Required: true},
	{Path: "asset_type", Kind: KindString, Required: true},
	{Path: "asset_address", Kind: KindString, Required: true},
	{Path: "purchase_price", Kind: KindNumber},
	{Path: "noi", Kind: KindNumber},
	{Path: "cap_rate", Kind: KindNumber},
	{Path: "ltv", Kind: KindNumber},
	{Path: "senior_debt", Kind: KindNumber},
	{Path: "mezzanine_debt", Kind: KindNumber},
	{Path: "gross_potential_rent", Kind: KindNumber},
	{Path: "effective_gross_income", Kind: KindNumber},
	{Path: "vacancy_rate", Kind: KindNumber},
	{Path: "operating_expenses", Kind: KindNumber},
	{Path: "total_units", Kind: KindNumber},
	{Path: "total_sqft", Kind: KindNumber},
}

// Schema returns the declared deal fields.
func Schema() []FieldSpec { return dealSchema }

// RequiredFields returns the paths that must be present for a deal to
// pass evaluation.
func RequiredFields() []string {
	var out []string
	for _, f := range dealSchema {
		if f.Required {
			out = append(out, f.Path)
		}
	}
	return out
}

// evidenceDocs maps sensitive numeric fields to the document type that
// must back them when the value did not come from a document.
var evidenceDocs = map[string]string{
	"purchase_price": "PSA",
	"noi":            "T12",
	"ltv":            "Debt Schedule",
	"cap_rate":       "Appraisal",
}

// EvidenceDoc returns the backing document type for a sensitive numeric
// field, or "" when the field needs none.
func EvidenceDoc(fieldPath string) string {
	return evidenceDocs[fieldPath]
}
