// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealgate/platform/config"
	"dealgate/platform/shared/logger"
)

// Reconciler cross-references a deal's extractions and maintains its
// conflicts. Safe to run concurrently across deals; within one deal the
// per-field upsert keeps at most one OPEN conflict.
type Reconciler struct {
	repo      Repository
	threshold float64
	clock     func() time.Time
	log       *logger.Logger
}

// NewReconciler builds a reconciler from the gateway config.
func NewReconciler(repo Repository, cfg *config.Config, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.New("extraction")
	}
	return &Reconciler{
		repo:      repo,
		threshold: cfg.ConflictVarianceThreshold,
		clock:     func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// Synthesize builds the cross-reference matrix for a deal, flags
// fields whose spread clears the variance threshold, and upserts one
// OPEN conflict per flagged field. Terminal conflicts are left alone.
func (r *Reconciler) Synthesize(ctx context.Context, dealID string) (*SynthesisResult, error) {
	extractions, err := r.repo.ListExtractions(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}

	matrix := buildMatrix(extractions)
	result := &SynthesisResult{DealID: dealID, CrossReferenceMatrix: matrix}

	for _, entry := range matrix {
		if entry.Stats == nil || entry.Stats.VariancePercent < r.threshold {
			continue
		}

		conflict, err := r.upsertConflict(ctx, dealID, entry)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, conflict)
		}
	}

	result.Summary = summarize(dealID, len(extractions), matrix, result.Conflicts)
	return result, nil
}

// buildMatrix collects one entry per canonical field with one source
// per document type. When a document type reports a field twice, the
// newer extraction wins.
func buildMatrix(extractions []*DocumentExtraction) []CrossReferenceEntry {
	byField := map[string]map[string]ConflictSource{}
	for _, ex := range extractions {
		for field, data := range ex.ExtractedData {
			if data.Value.Number == nil {
				continue
			}
			sources, ok := byField[field]
			if !ok {
				sources = map[string]ConflictSource{}
				byField[field] = sources
			}
			existing, seen := sources[ex.ExtractionType]
			if seen && !ex.ExtractedAt.After(existing.ExtractedAt) {
				continue
			}
			sources[ex.ExtractionType] = ConflictSource{
				Value:        *data.Value.Number,
				Confidence:   data.Confidence,
				ExtractionID: ex.ID,
				DocumentID:   ex.DocumentID,
				ExtractedAt:  ex.ExtractedAt,
			}
		}
	}

	var matrix []CrossReferenceEntry
	for _, field := range CanonicalFields() {
		sources, ok := byField[field]
		if !ok {
			continue
		}
		values := make([]float64, 0, len(sources))
		for _, s := range sources {
			values = append(values, s.Value)
		}
		matrix = append(matrix, CrossReferenceEntry{
			Field:   field,
			Sources: sources,
			Stats:   computeStats(values),
		})
	}
	return matrix
}

// recommend picks the source with the highest reliabilityRank times
// confidence. Ties go to the higher rank, then the newer extraction.
func recommend(sources map[string]ConflictSource) (docType string, value float64, reason string) {
	type candidate struct {
		docType string
		source  ConflictSource
		score   float64
		rank    int
	}

	var candidates []candidate
	for dt, s := range sources {
		rank := ReliabilityRank(dt)
		candidates = append(candidates, candidate{
			docType: dt,
			source:  s,
			score:   float64(rank) * s.Confidence,
			rank:    rank,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank > candidates[j].rank
		}
		return candidates[i].source.ExtractedAt.After(candidates[j].source.ExtractedAt)
	})

	best := candidates[0]
	reason = fmt.Sprintf("%s has the highest reliability-weighted confidence (rank %d, confidence %.2f)",
		best.docType, best.rank, best.source.Confidence)
	return best.docType, best.source.Value, reason
}

func (r *Reconciler) upsertConflict(ctx context.Context, dealID string, entry CrossReferenceEntry) (*Conflict, error) {
	now := r.clock()

	existing, err := r.repo.GetConflictByField(ctx, dealID, entry.Field)
	if err != nil && !errors.Is(err, ErrConflictNotFound) {
		return nil, fmt.Errorf("failed to load conflict for %s: %w", entry.Field, err)
	}
	if existing != nil && existing.Status != ConflictOpen {
		// Already resolved or dismissed; do not reopen.
		return nil, nil
	}

	conflict := existing
	if conflict == nil {
		conflict = &Conflict{
			ID:        uuid.NewString(),
			DealID:    dealID,
			Field:     entry.Field,
			Status:    ConflictOpen,
			CreatedAt: now,
		}
	}

	docType, value, reason := recommend(entry.Sources)
	conflict.Sources = entry.Sources
	conflict.VariancePercent = entry.Stats.VariancePercent
	conflict.RecommendedSource = docType
	conflict.RecommendedValue = &value
	conflict.RecommendedReason = reason
	conflict.UpdatedAt = now

	if err := r.repo.SaveConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("failed to save conflict for %s: %w", entry.Field, err)
	}
	return conflict, nil
}

// Resolve closes an OPEN conflict with an accepted value. The value is
// coerced to numeric when the string parses as one.
func (r *Reconciler) Resolve(ctx context.Context, conflictID, userID, resolvedValue, reason string) (*Conflict, error) {
	conflict, err := r.repo.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status != ConflictOpen {
		return nil, ErrConflictClosed
	}

	if reason == "" {
		reason = conflict.RecommendedReason
	}
	value := coerceResolvedValue(resolvedValue)
	now := r.clock()

	conflict.Status = ConflictResolved
	conflict.ResolvedValue = &value
	conflict.ResolvedBy = userID
	conflict.ResolvedAt = &now
	conflict.ResolvedReason = reason
	conflict.UpdatedAt = now

	if err := r.repo.SaveConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("failed to resolve conflict: %w", err)
	}
	r.log.Info(userID, "", "extraction conflict resolved", map[string]interface{}{
		"conflict_id": conflictID,
		"field":       conflict.Field,
	})
	return conflict, nil
}

// Dismiss closes an OPEN conflict without accepting a value. A reason
// is mandatory.
func (r *Reconciler) Dismiss(ctx context.Context, conflictID, userID, reason string) (*Conflict, error) {
	if reason == "" {
		return nil, ErrMissingReason
	}
	conflict, err := r.repo.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status != ConflictOpen {
		return nil, ErrConflictClosed
	}

	now := r.clock()
	conflict.Status = ConflictDismissed
	conflict.ResolvedBy = userID
	conflict.ResolvedAt = &now
	conflict.ResolvedReason = reason
	conflict.UpdatedAt = now

	if err := r.repo.SaveConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("failed to dismiss conflict: %w", err)
	}
	return conflict, nil
}

// ListConflicts returns a deal's conflicts, optionally filtered by
// status.
func (r *Reconciler) ListConflicts(ctx context.Context, dealID, status string) ([]*Conflict, error) {
	return r.repo.ListConflicts(ctx, dealID, status)
}

func coerceResolvedValue(raw string) FieldValue {
	cleaned := strings.NewReplacer(",", "", "$", "", "%", "").Replace(strings.TrimSpace(raw))
	if n, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return NumberValue(n)
	}
	return TextValue(raw)
}

func summarize(dealID string, extractionCount int, matrix []CrossReferenceEntry, conflicts []*Conflict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cross-referenced %d extraction(s) covering %d field(s) for deal %s.",
		extractionCount, len(matrix), dealID)
	if len(conflicts) == 0 {
		b.WriteString(" No conflicts above the variance threshold.")
		return b.String()
	}
	fmt.Fprintf(&b, " %d field(s) in conflict:", len(conflicts))
	for _, c := range conflicts {
		fmt.Fprintf(&b, " %s (variance %.1f%%, recommend %s);",
			c.Field, c.VariancePercent*100, c.RecommendedSource)
	}
	return strings.TrimSuffix(b.String(), ";")
}
