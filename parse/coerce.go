// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce normalizes a raw LLM response into the declared schema. Every
// declared field ends up as a finite number, a trimmed string, or null.
// The model often wraps its JSON in prose or a code fence, so the first
// balanced object is extracted before decoding.
func Coerce(raw string) (map[string]Value, error) {
	objText := extractJSONObject(raw)
	if objText == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(objText), &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response object: %w", err)
	}

	result := make(map[string]Value, len(dealSchema))
	for _, spec := range dealSchema {
		result[spec.Path] = coerceField(decoded[spec.Path], spec.Kind)
	}
	return result, nil
}

func coerceField(raw json.RawMessage, kind FieldKind) Value {
	if len(raw) == 0 {
		return NullValue()
	}

	switch kind {
	case KindNumber:
		var num float64
		if err := json.Unmarshal(raw, &num); err == nil {
			if math.IsNaN(num) || math.IsInf(num, 0) {
				return NullValue()
			}
			return NumberValue(num)
		}
		// Models sometimes quote numbers or append units.
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if num, ok := parseLooseNumber(s); ok {
				return NumberValue(num)
			}
		}
		return NullValue()

	default:
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			s = strings.TrimSpace(s)
			if s == "" {
				return NullValue()
			}
			return TextValue(s)
		}
		return NullValue()
	}
}

// parseLooseNumber strips currency symbols, commas, and percent signs
// before parsing. "$12,500,000" and "75%" both coerce.
func parseLooseNumber(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSuffix(cleaned, "%")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	return num, true
}

// extractJSONObject returns the first balanced top-level JSON object in
// the text, tracking string literals so braces inside values don't
// confuse the scan.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// Validate checks a coerced result for structural soundness: at least
// one declared field non-null. Field-level quality is the evaluator's
// job; this gate only decides whether a repair attempt is needed.
func Validate(result map[string]Value) error {
	if result == nil {
		return fmt.Errorf("empty parse result")
	}
	for _, spec := range dealSchema {
		if v, ok := result[spec.Path]; ok && !v.IsNull() {
			return nil
		}
	}
	return fmt.Errorf("no declared field extracted")
}
