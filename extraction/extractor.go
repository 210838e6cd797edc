// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealgate/platform/llm"
	"dealgate/platform/shared/logger"
)

const extractorSystemPrompt = `You are a commercial real estate document analyst.
Extract the requested financial fields from the document text you are given.
Reply with a single JSON object mapping field names to {"value": <number or string>, "confidence": <0..1>}.
Never invent numbers. Omit fields the document does not state.`

// Extractor runs one LLM extraction per document and normalizes the
// result into the canonical field vocabulary.
type Extractor struct {
	provider llm.Provider
	repo     Repository
	model    string
	clock    func() time.Time
	log      *logger.Logger
}

// NewExtractor builds a document extractor.
func NewExtractor(provider llm.Provider, repo Repository, model string, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.New("extraction")
	}
	return &Extractor{
		provider: provider,
		repo:     repo,
		model:    model,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Extract pulls canonical fields out of one document's text and
// persists the result. The stored extraction is immutable; re-running
// a document produces a new row.
func (e *Extractor) Extract(ctx context.Context, dealID, documentID, documentType, text string) (*DocumentExtraction, error) {
	if ReliabilityRank(documentType) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocumentType, documentType)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:       buildExtractionPrompt(documentType, text),
		SystemPrompt: extractorSystemPrompt,
		Model:        e.model,
		Temperature:  0,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	extraction := &DocumentExtraction{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		DealID:         dealID,
		ExtractionType: documentType,
		ExtractedData:  map[string]ExtractedField{},
		Status:         ExtractionCompleted,
		ExtractedAt:    e.clock(),
	}

	fields, err := parseExtractionResponse(resp.Content)
	if err != nil {
		e.log.Warn("", "", "extraction response was not parseable", map[string]interface{}{
			"deal_id":     dealID,
			"document_id": documentID,
			"error":       err.Error(),
		})
		extraction.Status = ExtractionFailed
	} else {
		for name, field := range fields {
			canonical := CanonicalField(name)
			if canonical == "" || field.Value.IsNull() {
				continue
			}
			field.Source = documentType
			extraction.ExtractedData[canonical] = field
		}
		extraction.OverallConfidence = overallConfidence(extraction.ExtractedData)
	}

	if err := e.repo.SaveExtraction(ctx, extraction); err != nil {
		return nil, fmt.Errorf("failed to save extraction: %w", err)
	}
	return extraction, nil
}

func buildExtractionPrompt(documentType, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s\n\nFields to extract:\n", documentType)
	for _, f := range CanonicalFields() {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

// parseExtractionResponse accepts the first balanced JSON object in the
// response; models wrap answers in prose and fences often enough.
func parseExtractionResponse(raw string) (map[string]ExtractedField, error) {
	obj, err := firstJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var fields map[string]ExtractedField
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode extraction object: %w", err)
	}
	return fields, nil
}

// firstJSONObject returns the first balanced {...} span, tracking
// string literals so braces inside values do not confuse the scan.
func firstJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in response")
}

func overallConfidence(fields map[string]ExtractedField) float64 {
	if len(fields) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range fields {
		sum += f.Confidence
	}
	return sum / float64(len(fields))
}
