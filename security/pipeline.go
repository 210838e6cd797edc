// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package security

import (
	"dealgate/platform/config"
	"dealgate/platform/shared/logger"
)

// CheckResult is the per-request outcome of the full input check.
type CheckResult struct {
	SanitizedInput  string   `json:"sanitized_input"`
	WasModified     bool     `json:"was_modified"`
	Modifications   []string `json:"modifications"`
	JailbreakScore  float64  `json:"jailbreak_score"`
	PatternsMatched []string `json:"patterns_matched"`
	Blocked         bool     `json:"blocked"`
	Warning         string   `json:"warning,omitempty"`
}

// Pipeline runs the input and output security checks. Construct once at
// startup and share; all methods are safe for concurrent use.
type Pipeline struct {
	enabled                 bool
	outputValidationEnabled bool
	blockThreshold          float64
	warnThreshold           float64
	maxInputLength          int
	patterns                *PatternSet
	log                     *logger.Logger
}

// NewPipeline builds a pipeline from the gateway configuration. When the
// configuration names a patterns override file it is merged into the
// built-in table; a bad file fails startup rather than silently weakening
// detection.
func NewPipeline(cfg *config.Config, log *logger.Logger) (*Pipeline, error) {
	patterns := NewPatternSet()
	if cfg.SecurityPatternsFile != "" {
		if err := patterns.LoadPatternsFile(cfg.SecurityPatternsFile); err != nil {
			return nil, err
		}
	}

	if log == nil {
		log = logger.New("security")
	}

	return &Pipeline{
		enabled:                 cfg.SecurityEnabled,
		outputValidationEnabled: cfg.OutputValidationEnabled,
		blockThreshold:          cfg.JailbreakBlockThreshold,
		warnThreshold:           cfg.JailbreakWarnThreshold,
		maxInputLength:          cfg.MaxInputLength,
		patterns:                patterns,
		log:                     log,
	}, nil
}

// Check sanitizes the input and scores it for jailbreak attempts. Jailbreak
// detection runs on the original text. When the pipeline is disabled the
// input passes through untouched.
func (p *Pipeline) Check(text string) *CheckResult {
	if !p.enabled {
		return &CheckResult{
			SanitizedInput:  text,
			Modifications:   []string{},
			PatternsMatched: []string{},
		}
	}

	sanitized := p.SanitizeInput(text)
	jailbreak := p.DetectJailbreak(text)

	result := &CheckResult{
		SanitizedInput:  sanitized.Sanitized,
		WasModified:     sanitized.WasModified,
		Modifications:   sanitized.Modifications,
		JailbreakScore:  jailbreak.Score,
		PatternsMatched: jailbreak.PatternsMatched,
		Blocked:         jailbreak.Blocked,
	}

	if jailbreak.Blocked {
		p.log.Warn("", "", "input blocked by jailbreak detection", map[string]interface{}{
			"score":    jailbreak.Score,
			"patterns": jailbreak.PatternsMatched,
		})
	} else if jailbreak.Warning {
		result.Warning = "input resembles an instruction-override attempt"
		p.log.Warn("", "", "jailbreak warning", map[string]interface{}{
			"score":    jailbreak.Score,
			"patterns": jailbreak.PatternsMatched,
		})
	}

	return result
}

// Enabled reports whether the pipeline is active.
func (p *Pipeline) Enabled() bool {
	return p.enabled
}
