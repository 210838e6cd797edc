// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package security

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// tokenBreak is inserted inside escaped delimiters. U+2060 WORD JOINER is
// invisible, survives NFKC, and breaks token contiguity so a model tokenizer
// no longer sees the delimiter.
const tokenBreak = "⁠"

var (
	codeFenceRe      = regexp.MustCompile("```")
	bracketKeywordRe = regexp.MustCompile(`(?i)\[(system|admin|override|sudo)\]`)
	angleTagRe       = regexp.MustCompile(`(?i)<(/?)(system|admin|override|sudo)>`)
)

// Modification tags recorded by SanitizeInput.
const (
	ModUnicodeNormalized   = "unicode_normalized"
	ModEscapedCodeFence    = "escaped_code_fence"
	ModEscapedBracket      = "escaped_bracket_keyword"
	ModEscapedAngleTag     = "escaped_angle_tag"
	ModTruncated           = "truncated"
	ModStrippedControlChar = "stripped_control_chars"
)

// SanitizeResult is the outcome of input sanitization.
type SanitizeResult struct {
	Sanitized     string   `json:"sanitized"`
	WasModified   bool     `json:"was_modified"`
	Modifications []string `json:"modifications"`
}

// SanitizeInput neutralizes prompt-injection carriers in user text without
// altering legitimate business content. Steps run in a fixed order: NFKC
// normalization (homoglyph defense), delimiter escaping, length truncation,
// control-character stripping. Sanitization is idempotent.
func (p *Pipeline) SanitizeInput(text string) *SanitizeResult {
	result := &SanitizeResult{Modifications: []string{}}
	if text == "" {
		return result
	}

	sanitized := text

	if normalized := norm.NFKC.String(sanitized); normalized != sanitized {
		sanitized = normalized
		result.Modifications = append(result.Modifications, ModUnicodeNormalized)
	}

	if escaped := codeFenceRe.ReplaceAllString(sanitized, "`"+tokenBreak+"`"+tokenBreak+"`"); escaped != sanitized {
		sanitized = escaped
		result.Modifications = append(result.Modifications, ModEscapedCodeFence)
	}

	if escaped := bracketKeywordRe.ReplaceAllString(sanitized, "["+tokenBreak+"$1]"); escaped != sanitized {
		sanitized = escaped
		result.Modifications = append(result.Modifications, ModEscapedBracket)
	}

	if escaped := angleTagRe.ReplaceAllString(sanitized, "<"+tokenBreak+"$1$2>"); escaped != sanitized {
		sanitized = escaped
		result.Modifications = append(result.Modifications, ModEscapedAngleTag)
	}

	if runes := []rune(sanitized); len(runes) > p.maxInputLength {
		sanitized = string(runes[:p.maxInputLength])
		result.Modifications = append(result.Modifications, ModTruncated)
	}

	if stripped := stripControlChars(sanitized); stripped != sanitized {
		sanitized = stripped
		result.Modifications = append(result.Modifications, ModStrippedControlChar)
	}

	result.Sanitized = sanitized
	result.WasModified = len(result.Modifications) > 0
	return result
}

// stripControlChars removes C0/C1 control characters except tab (0x09) and
// newline (0x0A).
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' {
			return r
		}
		if r < 0x20 || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, s)
}
