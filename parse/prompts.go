// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"fmt"
	"strings"
)

// PromptVersion tags persisted sessions with the prompt that produced
// them so answers stay reproducible across prompt edits.
const PromptVersion = "deal-parse-v2"

const systemPrompt = `You are a commercial real estate underwriting assistant.
Extract deal facts from the text you are given and reply with a single JSON object.
Never invent numbers. Use null for anything the text does not state.`

// BuildPrompt renders the user prompt for a variant. STRICT_REPAIR is
// the second attempt after a malformed first response and demands bare
// JSON with no surrounding prose.
func BuildPrompt(variant, inputText string) string {
	var b strings.Builder

	b.WriteString("Extract the following fields from the deal description below.\n\nFields:\n")
	for _, spec := range dealSchema {
		kind := "string"
		if spec.Kind == KindNumber {
			kind = "number"
		}
		fmt.Fprintf(&b, "- %s (%s)\n", spec.Path, kind)
	}

	if variant == VariantStrictRepair {
		b.WriteString("\nYour previous answer was not valid JSON. Respond with ONLY a JSON object, no markdown, no commentary, starting with { and ending with }.\n")
	} else {
		b.WriteString("\nRespond with a JSON object keyed by the field names above. Use \"unknown\" for a required string field the text does not state, and null for unknown numbers.\n")
	}

	b.WriteString("\nDeal description:\n")
	b.WriteString(inputText)
	return b.String()
}

// SystemPrompt returns the fixed system prompt.
func SystemPrompt() string { return systemPrompt }
