// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package lineage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"dealgate/platform/config"
	"dealgate/platform/extraction"
	"dealgate/platform/shared/logger"
)

// verificationPriority orders fields by underwriting impact, highest
// first. The position bonus is (listLength - index) * 10.
var verificationPriority = []string{
	extraction.FieldPurchasePrice,
	extraction.FieldNetOperatingIncome,
	extraction.FieldCapRate,
	extraction.FieldGrossPotentialRent,
	extraction.FieldEffectiveGrossIncome,
	extraction.FieldVacancyRate,
	extraction.FieldOperatingExpenses,
	"debtService",
	"cashOnCash",
	"irr",
}

// Ledger tracks field values, their verification state, and the
// bounded history of superseded values.
type Ledger struct {
	repo          Repository
	lowConfidence float64
	clock         func() time.Time
	log           *logger.Logger
}

// NewLedger builds a lineage ledger.
func NewLedger(repo Repository, cfg *config.Config, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.New("lineage")
	}
	return &Ledger{
		repo:          repo,
		lowConfidence: cfg.LowConfidenceThreshold,
		clock:         func() time.Time { return time.Now().UTC() },
		log:           log,
	}
}

var validSourceTypes = map[string]bool{
	SourceManual:      true,
	SourceDocument:    true,
	SourceFormula:     true,
	SourceAIExtracted: true,
	SourceImported:    true,
}

// initialStatus derives the verification status a fresh value starts
// in. Manual entries need review; AI extractions are labeled as such.
func initialStatus(sourceType string) string {
	switch sourceType {
	case SourceAIExtracted:
		return StatusAIExtracted
	case SourceManual:
		return StatusNeedsReview
	default:
		return StatusUnverified
	}
}

// Track records a new observed value for a field. When the value
// changes, the previous value is pushed onto the bounded history, and
// a previously human-verified field drops to NEEDS_REVIEW.
func (l *Ledger) Track(ctx context.Context, dealID, modelID, field string, input TrackInput) (*Record, error) {
	if !validSourceTypes[input.SourceType] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSourceType, input.SourceType)
	}

	now := l.clock()
	status := initialStatus(input.SourceType)
	if input.ExtractionConfidence != nil && *input.ExtractionConfidence < l.lowConfidence &&
		status != StatusNeedsReview {
		// Low-confidence extractions go straight to the review queue.
		status = StatusNeedsReview
	}

	existing, err := l.repo.Get(ctx, dealID, modelID, field)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load lineage: %w", err)
	}

	record := &Record{
		DealID:               dealID,
		ModelID:              modelID,
		Field:                field,
		CurrentValue:         input.Value,
		SourceType:           input.SourceType,
		SourceDocID:          input.SourceDocID,
		SourceField:          input.SourceField,
		ExtractionConfidence: input.ExtractionConfidence,
		VerificationStatus:   status,
		UpdatedAt:            now,
	}
	if input.SourceType == SourceAIExtracted || input.SourceType == SourceDocument {
		record.ExtractedAt = &now
	}

	if existing != nil {
		record.History = existing.History
		if !existing.CurrentValue.Equal(input.Value) {
			entry := HistoryEntry{
				Value:              existing.CurrentValue,
				UpdatedAt:          existing.UpdatedAt,
				SourceType:         existing.SourceType,
				VerificationStatus: existing.VerificationStatus,
			}
			record.History = append([]HistoryEntry{entry}, existing.History...)
			if len(record.History) > historyCap {
				record.History = record.History[:historyCap]
			}
			if existing.VerificationStatus == StatusHumanVerified {
				// A verified value changed underneath its verifier.
				record.VerificationStatus = StatusNeedsReview
			}
		} else {
			// Same value re-observed; keep the verification state.
			record.VerificationStatus = existing.VerificationStatus
			record.VerifiedBy = existing.VerifiedBy
			record.VerifiedAt = existing.VerifiedAt
			record.VerificationNotes = existing.VerificationNotes
		}
	}

	if err := l.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to upsert lineage: %w", err)
	}
	return record, nil
}

// Verify marks a tracked field as human verified.
func (l *Ledger) Verify(ctx context.Context, dealID, modelID, field, verifierID, notes string) (*Record, error) {
	record, err := l.repo.Get(ctx, dealID, modelID, field)
	if err != nil {
		return nil, err
	}

	now := l.clock()
	record.VerificationStatus = StatusHumanVerified
	record.VerifiedBy = verifierID
	record.VerifiedAt = &now
	record.VerificationNotes = notes
	record.UpdatedAt = now

	if err := l.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist verification: %w", err)
	}
	l.log.Info(verifierID, "", "lineage field verified", map[string]interface{}{
		"deal_id": dealID,
		"field":   field,
	})
	return record, nil
}

// SuggestNext ranks unverified fields by how much a human's attention
// is worth there: field priority, low extraction confidence, an
// explicit needs-review flag, and staleness.
func (l *Ledger) SuggestNext(ctx context.Context, dealID, modelID string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}

	records, err := l.repo.List(ctx, dealID, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}

	now := l.clock()
	var suggestions []Suggestion
	for _, r := range records {
		if r.VerificationStatus == StatusHumanVerified {
			continue
		}
		suggestions = append(suggestions, l.scoreRecord(r, now))
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func (l *Ledger) scoreRecord(r *Record, now time.Time) Suggestion {
	score := 0.0
	var reasons []string

	for i, field := range verificationPriority {
		if r.Field == field {
			bonus := float64(len(verificationPriority)-i) * 10
			score += bonus
			reasons = append(reasons, fmt.Sprintf("high-impact field (+%.0f)", bonus))
			break
		}
	}

	confidence := 1.0
	if r.ExtractionConfidence != nil {
		confidence = *r.ExtractionConfidence
	}
	if confPenalty := (1 - confidence) * 50; confPenalty > 0 {
		score += confPenalty
		reasons = append(reasons, fmt.Sprintf("extraction confidence %.0f%% (+%.0f)", confidence*100, confPenalty))
	}

	if r.VerificationStatus == StatusNeedsReview {
		score += 30
		reasons = append(reasons, "flagged for review (+30)")
	}

	ageDays := now.Sub(r.UpdatedAt).Hours() / 24
	if agePoints := math.Min(ageDays*2, 20); agePoints > 0 {
		score += agePoints
		reasons = append(reasons, fmt.Sprintf("%.0f day(s) old (+%.0f)", ageDays, agePoints))
	}

	reason := "no signal"
	if len(reasons) > 0 {
		reason = reasons[0]
		for _, more := range reasons[1:] {
			reason += ", " + more
		}
	}

	return Suggestion{
		Field:              r.Field,
		Score:              score,
		Reason:             reason,
		VerificationStatus: r.VerificationStatus,
		Confidence:         confidence,
	}
}

// Get loads the lineage for one field.
func (l *Ledger) Get(ctx context.Context, dealID, modelID, field string) (*Record, error) {
	return l.repo.Get(ctx, dealID, modelID, field)
}
