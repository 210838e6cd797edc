// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SaveExtraction writes one immutable extraction row
func (r *PostgresRepository) SaveExtraction(ctx context.Context, e *DocumentExtraction) error {
	dataJSON, err := json.Marshal(e.ExtractedData)
	if err != nil {
		return fmt.Errorf("failed to marshal extracted data: %w", err)
	}

	query := `
		INSERT INTO document_extractions (
			id, document_id, deal_id, extraction_type, extracted_data,
			overall_confidence, status, extracted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.DocumentID, e.DealID, e.ExtractionType, dataJSON,
		e.OverallConfidence, e.Status, e.ExtractedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save extraction: %w", err)
	}
	return nil
}

// ListExtractions returns all extractions for a deal, newest first
func (r *PostgresRepository) ListExtractions(ctx context.Context, dealID string) ([]*DocumentExtraction, error) {
	query := `
		SELECT id, document_id, deal_id, extraction_type, extracted_data,
			   overall_confidence, status, extracted_at
		FROM document_extractions
		WHERE deal_id = $1
		ORDER BY extracted_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var extractions []*DocumentExtraction
	for rows.Next() {
		var e DocumentExtraction
		var dataJSON []byte
		if err := rows.Scan(
			&e.ID, &e.DocumentID, &e.DealID, &e.ExtractionType, &dataJSON,
			&e.OverallConfidence, &e.Status, &e.ExtractedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		// Unparseable stored data degrades to an empty map, not an error.
		e.ExtractedData = map[string]ExtractedField{}
		_ = json.Unmarshal(dataJSON, &e.ExtractedData)
		extractions = append(extractions, &e)
	}
	return extractions, rows.Err()
}

const conflictColumns = `
	id, deal_id, field, sources, variance_percent,
	recommended_source, recommended_value, recommended_reason,
	status, resolved_value, resolved_by, resolved_at, resolved_reason,
	created_at, updated_at
`

// GetConflictByField returns the conflict for (deal, canonical field)
func (r *PostgresRepository) GetConflictByField(ctx context.Context, dealID, field string) (*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM extraction_conflicts WHERE deal_id = $1 AND field = $2`
	return r.scanConflict(r.db.QueryRowContext(ctx, query, dealID, field))
}

// GetConflict loads a conflict by ID
func (r *PostgresRepository) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM extraction_conflicts WHERE id = $1`
	return r.scanConflict(r.db.QueryRowContext(ctx, query, id))
}

// SaveConflict inserts or fully replaces a conflict row. The unique
// (deal_id, field) key keeps one conflict per canonical field.
func (r *PostgresRepository) SaveConflict(ctx context.Context, c *Conflict) error {
	sourcesJSON, err := json.Marshal(c.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict sources: %w", err)
	}
	var resolvedJSON []byte
	if c.ResolvedValue != nil {
		if resolvedJSON, err = json.Marshal(c.ResolvedValue); err != nil {
			return fmt.Errorf("failed to marshal resolved value: %w", err)
		}
	}

	query := `
		INSERT INTO extraction_conflicts (
			id, deal_id, field, sources, variance_percent,
			recommended_source, recommended_value, recommended_reason,
			status, resolved_value, resolved_by, resolved_at, resolved_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (deal_id, field) DO UPDATE SET
			sources = EXCLUDED.sources,
			variance_percent = EXCLUDED.variance_percent,
			recommended_source = EXCLUDED.recommended_source,
			recommended_value = EXCLUDED.recommended_value,
			recommended_reason = EXCLUDED.recommended_reason,
			status = EXCLUDED.status,
			resolved_value = EXCLUDED.resolved_value,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at,
			resolved_reason = EXCLUDED.resolved_reason,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.DealID, c.Field, sourcesJSON, c.VariancePercent,
		nullString(c.RecommendedSource), c.RecommendedValue, nullString(c.RecommendedReason),
		c.Status, nullBytes(resolvedJSON), nullString(c.ResolvedBy), c.ResolvedAt, nullString(c.ResolvedReason),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}
	return nil
}

// ListConflicts returns a deal's conflicts, optionally filtered by status
func (r *PostgresRepository) ListConflicts(ctx context.Context, dealID, status string) ([]*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM extraction_conflicts WHERE deal_id = $1`
	args := []interface{}{dealID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []*Conflict
	for rows.Next() {
		c, err := r.scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresRepository) scanConflict(row rowScanner) (*Conflict, error) {
	var c Conflict
	var sourcesJSON, resolvedJSON []byte
	var recommendedSource, recommendedReason, resolvedBy, resolvedReason sql.NullString
	var recommendedValue sql.NullFloat64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.DealID, &c.Field, &sourcesJSON, &c.VariancePercent,
		&recommendedSource, &recommendedValue, &recommendedReason,
		&c.Status, &resolvedJSON, &resolvedBy, &resolvedAt, &resolvedReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrConflictNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}

	c.Sources = map[string]ConflictSource{}
	_ = json.Unmarshal(sourcesJSON, &c.Sources)
	c.RecommendedSource = recommendedSource.String
	c.RecommendedReason = recommendedReason.String
	if recommendedValue.Valid {
		c.RecommendedValue = &recommendedValue.Float64
	}
	if len(resolvedJSON) > 0 {
		var v FieldValue
		if err := json.Unmarshal(resolvedJSON, &v); err == nil {
			c.ResolvedValue = &v
		}
	}
	c.ResolvedBy = resolvedBy.String
	c.ResolvedReason = resolvedReason.String
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}

// CreateTables creates the extraction tables if they do not exist.
func (r *PostgresRepository) CreateTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS document_extractions (
		id UUID PRIMARY KEY,
		document_id TEXT NOT NULL,
		deal_id TEXT NOT NULL,
		extraction_type TEXT NOT NULL,
		extracted_data JSONB NOT NULL DEFAULT '{}',
		overall_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		extracted_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_document_extractions_deal
		ON document_extractions(deal_id, extracted_at DESC);

	CREATE TABLE IF NOT EXISTS extraction_conflicts (
		id UUID PRIMARY KEY,
		deal_id TEXT NOT NULL,
		field TEXT NOT NULL,
		sources JSONB NOT NULL DEFAULT '{}',
		variance_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		recommended_source TEXT,
		recommended_value DOUBLE PRECISION,
		recommended_reason TEXT,
		status TEXT NOT NULL DEFAULT 'OPEN',
		resolved_value JSONB,
		resolved_by TEXT,
		resolved_at TIMESTAMPTZ,
		resolved_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (deal_id, field)
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create extraction tables: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
