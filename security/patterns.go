// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package security

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// JailbreakPattern is one weighted signal in the jailbreak score. Pattern
// names are unique; ordering is irrelevant because scores are summed.
type JailbreakPattern struct {
	// Name is a stable identifier reported in scan results and audit rows.
	Name string

	// Regex is the compiled case-insensitive expression.
	Regex *regexp.Regexp

	// Weight is this pattern's contribution to the score, in [0, 1].
	Weight float64

	// Description explains what the pattern detects.
	Description string
}

// PatternSet holds the active jailbreak patterns.
type PatternSet struct {
	patterns []*JailbreakPattern
}

// NewPatternSet returns the compile-time default jailbreak pattern table.
func NewPatternSet() *PatternSet {
	return &PatternSet{patterns: defaultJailbreakPatterns()}
}

// Patterns returns all patterns in the set.
func (ps *PatternSet) Patterns() []*JailbreakPattern {
	return ps.patterns
}

// MaxPatternLength bounds user-supplied override regexes. Overlong patterns
// are a ReDoS vector.
const MaxPatternLength = 512

// patternsFile is the YAML shape of an overrides file.
type patternsFile struct {
	Patterns []struct {
		Name        string  `yaml:"name"`
		Regex       string  `yaml:"regex"`
		Weight      float64 `yaml:"weight"`
		Description string  `yaml:"description"`
	} `yaml:"patterns"`
}

// LoadPatternsFile merges patterns from a YAML file into the set. Entries
// whose name matches a built-in replace it; new names are appended.
func (ps *PatternSet) LoadPatternsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read patterns file: %w", err)
	}

	var file patternsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse patterns file: %w", err)
	}

	for _, p := range file.Patterns {
		if p.Name == "" {
			return fmt.Errorf("patterns file entry missing name")
		}
		if len(p.Regex) == 0 || len(p.Regex) > MaxPatternLength {
			return fmt.Errorf("pattern %q: regex must be 1-%d characters", p.Name, MaxPatternLength)
		}
		if p.Weight < 0 || p.Weight > 1 {
			return fmt.Errorf("pattern %q: weight must be in [0,1]", p.Name)
		}
		re, err := regexp.Compile("(?i)" + p.Regex)
		if err != nil {
			return fmt.Errorf("pattern %q: invalid regex: %w", p.Name, err)
		}

		pattern := &JailbreakPattern{
			Name:        p.Name,
			Regex:       re,
			Weight:      p.Weight,
			Description: p.Description,
		}

		replaced := false
		for i, existing := range ps.patterns {
			if existing.Name == p.Name {
				ps.patterns[i] = pattern
				replaced = true
				break
			}
		}
		if !replaced {
			ps.patterns = append(ps.patterns, pattern)
		}
	}

	return nil
}

// defaultJailbreakPatterns returns the built-in instruction-override
// signatures. Weights reflect how strongly each shape correlates with a
// deliberate attempt; a single strong match is enough to warn, two block.
func defaultJailbreakPatterns() []*JailbreakPattern {
	return []*JailbreakPattern{
		{
			Name:        "dan_jailbreak",
			Regex:       regexp.MustCompile(`(?i)\bDAN\s+mode\b|\bdo\s+anything\s+now\b`),
			Weight:      0.9,
			Description: "Detects the DAN (do-anything-now) persona jailbreak",
		},
		{
			Name:        "bypass_restrictions",
			Regex:       regexp.MustCompile(`(?i)\bbypass\s+(all\s+)?(restrictions|filters|safety|safeguards|guardrails)\b`),
			Weight:      0.8,
			Description: "Detects explicit requests to bypass safety controls",
		},
		{
			Name:        "ignore_instructions",
			Regex:       regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|directives?)\b`),
			Weight:      0.7,
			Description: "Detects instruction-override phrasing",
		},
		{
			Name:        "system_prompt_probe",
			Regex:       regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output)\s+(me\s+)?(your\s+)?(system\s+prompt|initial\s+instructions|hidden\s+instructions)\b`),
			Weight:      0.6,
			Description: "Detects attempts to extract the system prompt",
		},
		{
			Name:        "developer_mode",
			Regex:       regexp.MustCompile(`(?i)\bdeveloper\s+mode\b|\bjailbreak(ing|ed)?\b`),
			Weight:      0.6,
			Description: "Detects developer-mode and self-described jailbreak prompts",
		},
		{
			Name:        "role_override",
			Regex:       regexp.MustCompile(`(?i)\byou\s+are\s+no\s+longer\b|\bpretend\s+(you|that\s+you)\s+(are|have)\b.{0,40}\b(no|without)\s+(restrictions|rules|limits|guidelines)\b`),
			Weight:      0.6,
			Description: "Detects persona replacement with an unrestricted role",
		},
		{
			Name:        "admin_impersonation",
			Regex:       regexp.MustCompile(`(?i)\bi\s+am\s+(your|the)\s+(developer|creator|admin(istrator)?|owner)\b`),
			Weight:      0.4,
			Description: "Detects authority-claim social engineering",
		},
		{
			Name:        "prompt_leak",
			Regex:       regexp.MustCompile(`(?i)\b(repeat|echo|print)\s+everything\s+(above|before)\b`),
			Weight:      0.5,
			Description: "Detects conversation replay used to leak context",
		},
		{
			Name:        "encoding_smuggle",
			Regex:       regexp.MustCompile(`(?i)\b(base64|rot13|hex)\s*[-\s]?(decode|encoded?\s+(message|instructions?))\b`),
			Weight:      0.3,
			Description: "Detects encoded-payload smuggling",
		},
		{
			Name:        "delimiter_injection",
			Regex:       regexp.MustCompile(`(?i)\[\s*(system|admin|override|sudo)\s*\]|<\s*/?\s*(system|admin|override|sudo)\s*>`),
			Weight:      0.5,
			Description: "Detects fake prompt-delimiter markers in user text",
		},
	}
}
