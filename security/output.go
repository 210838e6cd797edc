// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package security

import (
	"encoding/json"
	"regexp"
)

// ExpectedType describes what shape of model output the caller expects.
type ExpectedType string

const (
	ExpectChat       ExpectedType = "chat"
	ExpectJSON       ExpectedType = "json"
	ExpectStructured ExpectedType = "structured"
)

// Severity ranks output-validation findings.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// rank orders severities for max-comparison.
func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// OutputValidation is the outcome of validating a model response.
type OutputValidation struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Severity Severity `json:"severity"`
}

// outputPattern is one response-validation signature.
type outputPattern struct {
	name     string
	regex    *regexp.Regexp
	severity Severity
}

var sqlInjectionPatterns = []outputPattern{
	{"sql_drop_table", regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`), SeverityHigh},
	{"sql_delete_from", regexp.MustCompile(`(?i)\bDELETE\s+FROM\b`), SeverityHigh},
	{"sql_union_select", regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`), SeverityHigh},
	{"sql_or_true", regexp.MustCompile(`(?i)['"]\s*OR\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?\s*--`), SeverityHigh},
	{"sql_truncate", regexp.MustCompile(`(?i)\bTRUNCATE\s+TABLE\b`), SeverityHigh},
	{"sql_insert_into", regexp.MustCompile(`(?i);\s*INSERT\s+INTO\b`), SeverityHigh},
}

var codeInjectionPatterns = []outputPattern{
	{"code_eval", regexp.MustCompile(`\beval\s*\(`), SeverityMedium},
	{"code_exec", regexp.MustCompile(`\bexec\s*\(`), SeverityMedium},
	{"code_settimeout_string", regexp.MustCompile(`setTimeout\s*\(\s*['"]`), SeverityMedium},
	{"code_innerhtml", regexp.MustCompile(`\binnerHTML\s*=`), SeverityMedium},
	{"code_child_process", regexp.MustCompile(`require\s*\(\s*['"]child_process['"]`), SeverityMedium},
	{"code_document_write", regexp.MustCompile(`\bdocument\.write\s*\(`), SeverityMedium},
}

var secretLeakPatterns = []outputPattern{
	{"secret_private_key", regexp.MustCompile(`-----BEGIN (RSA|PGP|SSH|EC|OPENSSH) PRIVATE KEY-----`), SeverityHigh},
	{"secret_certificate", regexp.MustCompile(`-----BEGIN CERTIFICATE-----`), SeverityHigh},
	{"secret_api_key", regexp.MustCompile(`(?i)\bapi[_-]?key\b\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}`), SeverityHigh},
	{"secret_password", regexp.MustCompile(`(?i)\bpassword\b\s*[:=]\s*\S{6,}`), SeverityHigh},
	{"secret_aws_access_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), SeverityHigh},
}

// ValidateOutput checks a model response for injection and exfiltration
// shapes. Findings never block delivery in the default configuration; the
// caller decides whether to redact.
func (p *Pipeline) ValidateOutput(text string, expected ExpectedType) *OutputValidation {
	result := &OutputValidation{Valid: true, Issues: []string{}, Severity: SeverityNone}
	if !p.outputValidationEnabled || text == "" {
		return result
	}

	for _, pat := range sqlInjectionPatterns {
		if pat.regex.MatchString(text) {
			result.addIssue(pat.name, pat.severity)
		}
	}

	// Code shapes are expected inside JSON payloads that quote raw model
	// output, so they are only meaningful for prose responses.
	if expected != ExpectJSON {
		for _, pat := range codeInjectionPatterns {
			if pat.regex.MatchString(text) {
				result.addIssue(pat.name, pat.severity)
			}
		}
	}

	for _, pat := range secretLeakPatterns {
		if pat.regex.MatchString(text) {
			result.addIssue(pat.name, pat.severity)
		}
	}

	if expected == ExpectJSON && !json.Valid([]byte(text)) {
		result.addIssue("invalid_json_structure", SeverityLow)
	}

	return result
}

func (v *OutputValidation) addIssue(name string, severity Severity) {
	v.Valid = false
	v.Issues = append(v.Issues, name)
	if severity.rank() > v.Severity.rank() {
		v.Severity = severity
	}
}
