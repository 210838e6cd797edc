// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealgate/platform/config"
)

// MockRepository is an in-memory Repository for reconciler tests.
type MockRepository struct {
	extractions []*DocumentExtraction
	conflicts   map[string]*Conflict
}

func NewMockRepository() *MockRepository {
	return &MockRepository{conflicts: make(map[string]*Conflict)}
}

func (m *MockRepository) SaveExtraction(_ context.Context, e *DocumentExtraction) error {
	copied := *e
	m.extractions = append(m.extractions, &copied)
	return nil
}

func (m *MockRepository) ListExtractions(_ context.Context, dealID string) ([]*DocumentExtraction, error) {
	var out []*DocumentExtraction
	for _, e := range m.extractions {
		if e.DealID == dealID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockRepository) GetConflictByField(_ context.Context, dealID, field string) (*Conflict, error) {
	for _, c := range m.conflicts {
		if c.DealID == dealID && c.Field == field {
			copied := *c
			return &copied, nil
		}
	}
	return nil, ErrConflictNotFound
}

func (m *MockRepository) SaveConflict(_ context.Context, c *Conflict) error {
	// Mirror the unique (deal_id, field) key.
	for id, existing := range m.conflicts {
		if existing.DealID == c.DealID && existing.Field == c.Field && id != c.ID {
			delete(m.conflicts, id)
		}
	}
	copied := *c
	m.conflicts[c.ID] = &copied
	return nil
}

func (m *MockRepository) GetConflict(_ context.Context, id string) (*Conflict, error) {
	c, ok := m.conflicts[id]
	if !ok {
		return nil, ErrConflictNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *MockRepository) ListConflicts(_ context.Context, dealID, status string) ([]*Conflict, error) {
	var out []*Conflict
	for _, c := range m.conflicts {
		if c.DealID != dealID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func newTestReconciler(repo Repository) *Reconciler {
	return NewReconciler(repo, config.Load(), nil)
}

func seedExtraction(repo *MockRepository, dealID, docType string, at time.Time, data map[string]ExtractedField) {
	repo.extractions = append(repo.extractions, &DocumentExtraction{
		ID:             "ex-" + docType,
		DocumentID:     "doc-" + docType,
		DealID:         dealID,
		ExtractionType: docType,
		ExtractedData:  data,
		Status:         ExtractionCompleted,
		ExtractedAt:    at,
	})
}

func TestSynthesize_RecommendsMostReliableSource(t *testing.T) {
	repo := NewMockRepository()
	now := time.Now().UTC()
	seedExtraction(repo, "deal-1", DocRentRoll, now, map[string]ExtractedField{
		FieldNetOperatingIncome: {Value: NumberValue(1200000), Confidence: 0.9},
	})
	seedExtraction(repo, "deal-1", DocT12, now, map[string]ExtractedField{
		FieldNetOperatingIncome: {Value: NumberValue(1080000), Confidence: 0.95},
	})

	result, err := newTestReconciler(repo).Synthesize(context.Background(), "deal-1")
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, FieldNetOperatingIncome, conflict.Field)
	assert.Equal(t, ConflictOpen, conflict.Status)
	assert.InDelta(t, 0.105, conflict.VariancePercent, 0.001)
	assert.Equal(t, DocT12, conflict.RecommendedSource)
	require.NotNil(t, conflict.RecommendedValue)
	assert.Equal(t, 1080000.0, *conflict.RecommendedValue)
	assert.Len(t, conflict.Sources, 2)
}

func TestSynthesize_BelowThresholdIsNotFlagged(t *testing.T) {
	repo := NewMockRepository()
	now := time.Now().UTC()
	seedExtraction(repo, "deal-1", DocRentRoll, now, map[string]ExtractedField{
		FieldNetOperatingIncome: {Value: NumberValue(1001000), Confidence: 0.9},
	})
	seedExtraction(repo, "deal-1", DocT12, now, map[string]ExtractedField{
		FieldNetOperatingIncome: {Value: NumberValue(1000000), Confidence: 0.95},
	})

	result, err := newTestReconciler(repo).Synthesize(context.Background(), "deal-1")
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.CrossReferenceMatrix, 1)
	assert.NotNil(t, result.CrossReferenceMatrix[0].Stats)
}

func TestSynthesize_SingleSourceHasNoStats(t *testing.T) {
	repo := NewMockRepository()
	seedExtraction(repo, "deal-1", DocT12, time.Now().UTC(), map[string]ExtractedField{
		FieldNetOperatingIncome: {Value: NumberValue(1080000), Confidence: 0.95},
	})

	result, err := newTestReconciler(repo).Synthesize(context.Background(), "deal-1")
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.CrossReferenceMatrix, 1)
	assert.Nil(t, result.CrossReferenceMatrix[0].Stats)
}

func TestSynthesize_RerunKeepsOneOpenConflict(t *testing.T) {
	repo := NewMockRepository()
	now := time.Now().UTC()
	seedExtraction(repo, "deal-1", DocRentRoll, now, map[string]ExtractedField{
		FieldPurchasePrice: {Value: NumberValue(12500000), Confidence: 0.9},
	})
	seedExtraction(repo, "deal-1", DocBrokerAnalysis, now, map[string]ExtractedField{
		FieldPurchasePrice: {Value: NumberValue(14000000), Confidence: 0.8},
	})
	r := newTestReconciler(repo)

	_, err := r.Synthesize(context.Background(), "deal-1")
	require.NoError(t, err)
	_, err = r.Synthesize(context.Background(), "deal-1")
	require.NoError(t, err)

	open, err := repo.ListConflicts(context.Background(), "deal-1", ConflictOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestSynthesize_TerminalConflictIsNotReopened(t *testing.T) {
	repo := NewMockRepository()
	now := time.Now().UTC()
	seedExtraction(repo, "deal-1", DocRentRoll, now, map[string]ExtractedField{
		FieldNetOperatingIncome: {Value: NumberValue(1200000), Confidence: 0.9},
	})
	seedExtraction(repo, "deal-1", DocT12, now, map[string]ExtractedField{
		FieldNetOperatingIncome: {Value: NumberValue(1080000), Confidence: 0.95},
	})
	r := newTestReconciler(repo)

	result, err := r.Synthesize(context.Background(), "deal-1")
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)

	_, err = r.Resolve(context.Background(), result.Conflicts[0].ID, "user-1", "1080000", "")
	require.NoError(t, err)

	result, err = r.Synthesize(context.Background(), "deal-1")
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)

	all, err := repo.ListConflicts(context.Background(), "deal-1", "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ConflictResolved, all[0].Status)
}

func TestRecommend_TiesBreakOnRankThenRecency(t *testing.T) {
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	// Equal score: APPRAISAL rank 3 x 0.8 = 2.4, LOAN_DOCUMENTS rank 3 x 0.8.
	docType, _, _ := recommend(map[string]ConflictSource{
		DocAppraisal:     {Value: 100, Confidence: 0.8, ExtractedAt: older},
		DocLoanDocuments: {Value: 110, Confidence: 0.8, ExtractedAt: newer},
	})
	assert.Equal(t, DocLoanDocuments, docType)

	// Equal score across ranks: T12 rank 5 x 0.6 = 3.0, RENT_ROLL rank 4 x 0.75 = 3.0.
	docType, value, _ := recommend(map[string]ConflictSource{
		DocT12:      {Value: 100, Confidence: 0.6, ExtractedAt: older},
		DocRentRoll: {Value: 110, Confidence: 0.75, ExtractedAt: newer},
	})
	assert.Equal(t, DocT12, docType)
	assert.Equal(t, 100.0, value)
}

func TestResolve(t *testing.T) {
	repo := NewMockRepository()
	repo.conflicts["c1"] = &Conflict{
		ID:                "c1",
		DealID:            "deal-1",
		Field:             FieldNetOperatingIncome,
		Status:            ConflictOpen,
		RecommendedReason: "T12 has the highest reliability-weighted confidence",
	}
	r := newTestReconciler(repo)

	conflict, err := r.Resolve(context.Background(), "c1", "user-1", "$1,080,000", "")
	require.NoError(t, err)

	assert.Equal(t, ConflictResolved, conflict.Status)
	require.NotNil(t, conflict.ResolvedValue)
	require.NotNil(t, conflict.ResolvedValue.Number)
	assert.Equal(t, 1080000.0, *conflict.ResolvedValue.Number)
	assert.Equal(t, "user-1", conflict.ResolvedBy)
	assert.NotNil(t, conflict.ResolvedAt)
	// Empty reason defaults to the stored recommendation rationale.
	assert.Equal(t, "T12 has the highest reliability-weighted confidence", conflict.ResolvedReason)
}

func TestResolve_NonNumericValueStaysText(t *testing.T) {
	repo := NewMockRepository()
	repo.conflicts["c1"] = &Conflict{ID: "c1", DealID: "deal-1", Field: FieldCapRate, Status: ConflictOpen}
	r := newTestReconciler(repo)

	conflict, err := r.Resolve(context.Background(), "c1", "user-1", "pending appraisal", "manual review")
	require.NoError(t, err)
	require.NotNil(t, conflict.ResolvedValue.Text)
	assert.Equal(t, "pending appraisal", *conflict.ResolvedValue.Text)
}

func TestResolve_ClosedConflictFails(t *testing.T) {
	repo := NewMockRepository()
	repo.conflicts["c1"] = &Conflict{ID: "c1", Status: ConflictResolved}
	r := newTestReconciler(repo)

	_, err := r.Resolve(context.Background(), "c1", "user-1", "100", "again")
	assert.ErrorIs(t, err, ErrConflictClosed)
}

func TestDismiss(t *testing.T) {
	repo := NewMockRepository()
	repo.conflicts["c1"] = &Conflict{ID: "c1", Status: ConflictOpen}
	r := newTestReconciler(repo)

	_, err := r.Dismiss(context.Background(), "c1", "user-1", "")
	assert.ErrorIs(t, err, ErrMissingReason)

	conflict, err := r.Dismiss(context.Background(), "c1", "user-1", "duplicate of appraisal review")
	require.NoError(t, err)
	assert.Equal(t, ConflictDismissed, conflict.Status)
	assert.Equal(t, "duplicate of appraisal review", conflict.ResolvedReason)
}

func TestDismiss_UnknownConflict(t *testing.T) {
	r := newTestReconciler(NewMockRepository())
	_, err := r.Dismiss(context.Background(), "nope", "user-1", "reason")
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestComputeStats(t *testing.T) {
	stats := computeStats([]float64{1080000, 1200000})
	require.NotNil(t, stats)
	assert.Equal(t, 1080000.0, stats.Min)
	assert.Equal(t, 1200000.0, stats.Max)
	assert.Equal(t, 1140000.0, stats.Mean)
	assert.Equal(t, 1140000.0, stats.Median)
	assert.InDelta(t, 0.105, stats.VariancePercent, 0.001)

	assert.Nil(t, computeStats([]float64{1}))
	// Zero mean leaves variance undefined; the field is skipped.
	assert.Nil(t, computeStats([]float64{-100, 100}))
}
