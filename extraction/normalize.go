// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import "strings"

// Canonical field vocabulary. Documents name the same figure a dozen
// ways; every extraction is normalized to these before reconciliation.
const (
	FieldGrossPotentialRent   = "grossPotentialRent"
	FieldEffectiveGrossIncome = "effectiveGrossIncome"
	FieldNetOperatingIncome   = "netOperatingIncome"
	FieldVacancyRate          = "vacancyRate"
	FieldOperatingExpenses    = "operatingExpenses"
	FieldTotalUnits           = "totalUnits"
	FieldTotalSqft            = "totalSqft"
	FieldPurchasePrice        = "purchasePrice"
	FieldCapRate              = "capRate"
)

// CanonicalFields lists the vocabulary in a stable order.
func CanonicalFields() []string {
	return []string{
		FieldGrossPotentialRent,
		FieldEffectiveGrossIncome,
		FieldNetOperatingIncome,
		FieldVacancyRate,
		FieldOperatingExpenses,
		FieldTotalUnits,
		FieldTotalSqft,
		FieldPurchasePrice,
		FieldCapRate,
	}
}

// fieldAliases maps lowercased snake_case, camelCase, and common
// abbreviations to the canonical form.
var fieldAliases = map[string]string{
	"grosspotentialrent":   FieldGrossPotentialRent,
	"gross_potential_rent": FieldGrossPotentialRent,
	"gpr":                  FieldGrossPotentialRent,
	"gross_rent":           FieldGrossPotentialRent,

	"effectivegrossincome":   FieldEffectiveGrossIncome,
	"effective_gross_income": FieldEffectiveGrossIncome,
	"egi":                    FieldEffectiveGrossIncome,

	"netoperatingincome":   FieldNetOperatingIncome,
	"net_operating_income": FieldNetOperatingIncome,
	"noi":                  FieldNetOperatingIncome,

	"vacancyrate":  FieldVacancyRate,
	"vacancy_rate": FieldVacancyRate,
	"vacancy":      FieldVacancyRate,

	"operatingexpenses":  FieldOperatingExpenses,
	"operating_expenses": FieldOperatingExpenses,
	"opex":               FieldOperatingExpenses,

	"totalunits":  FieldTotalUnits,
	"total_units": FieldTotalUnits,
	"units":       FieldTotalUnits,
	"unit_count":  FieldTotalUnits,

	"totalsqft":   FieldTotalSqft,
	"total_sqft":  FieldTotalSqft,
	"sqft":        FieldTotalSqft,
	"square_feet": FieldTotalSqft,

	"purchaseprice":  FieldPurchasePrice,
	"purchase_price": FieldPurchasePrice,
	"price":          FieldPurchasePrice,
	"sale_price":     FieldPurchasePrice,

	"caprate":             FieldCapRate,
	"cap_rate":            FieldCapRate,
	"capitalization_rate": FieldCapRate,
}

// CanonicalField normalizes a field name to the canonical vocabulary.
// Unknown names return the empty string.
func CanonicalField(name string) string {
	return fieldAliases[strings.ToLower(strings.TrimSpace(name))]
}
