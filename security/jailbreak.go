// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package security

// JailbreakResult is the outcome of a jailbreak scan.
type JailbreakResult struct {
	// Score is the bounded sum of matched pattern weights, in [0, 1].
	Score float64 `json:"score"`

	// Blocked is true when Score reached the block threshold.
	Blocked bool `json:"blocked"`

	// Warning is true when Score reached the warn threshold but not the
	// block threshold.
	Warning bool `json:"warning"`

	// PatternsMatched lists the names of patterns that fired.
	PatternsMatched []string `json:"patterns_matched"`
}

// DetectJailbreak scans text against the weighted pattern table. Matching
// always operates on the original input, never the sanitized form, so
// sanitization cannot hide an attempt. Empty input scores zero.
func (p *Pipeline) DetectJailbreak(text string) *JailbreakResult {
	result := &JailbreakResult{PatternsMatched: []string{}}
	if text == "" {
		return result
	}

	sum := 0.0
	for _, pattern := range p.patterns.Patterns() {
		if pattern.Regex.MatchString(text) {
			sum += pattern.Weight
			result.PatternsMatched = append(result.PatternsMatched, pattern.Name)
		}
	}

	if sum > 1.0 {
		sum = 1.0
	}
	result.Score = sum
	result.Blocked = sum >= p.blockThreshold
	result.Warning = sum >= p.warnThreshold && !result.Blocked
	return result
}
