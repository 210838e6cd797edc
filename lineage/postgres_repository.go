// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package lineage

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

const lineageColumns = `
	deal_id, model_id, field, current_value, source_type,
	source_doc_id, source_field, extracted_at, extraction_confidence,
	verification_status, verified_by, verified_at, verification_notes,
	history, updated_at
`

// Get loads the lineage for one (deal, model, field)
func (r *PostgresRepository) Get(ctx context.Context, dealID, modelID, field string) (*Record, error) {
	query := `SELECT ` + lineageColumns + `
		FROM data_lineage
		WHERE deal_id = $1 AND model_id = $2 AND field = $3`
	return r.scanRecord(r.db.QueryRowContext(ctx, query, dealID, modelID, field))
}

// Upsert writes a lineage record keyed by (deal, model, field)
func (r *PostgresRepository) Upsert(ctx context.Context, rec *Record) error {
	valueJSON, err := json.Marshal(rec.CurrentValue)
	if err != nil {
		return fmt.Errorf("failed to marshal current value: %w", err)
	}
	historyJSON, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	query := `
		INSERT INTO data_lineage (
			deal_id, model_id, field, current_value, source_type,
			source_doc_id, source_field, extracted_at, extraction_confidence,
			verification_status, verified_by, verified_at, verification_notes,
			history, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (deal_id, model_id, field) DO UPDATE SET
			current_value = EXCLUDED.current_value,
			source_type = EXCLUDED.source_type,
			source_doc_id = EXCLUDED.source_doc_id,
			source_field = EXCLUDED.source_field,
			extracted_at = EXCLUDED.extracted_at,
			extraction_confidence = EXCLUDED.extraction_confidence,
			verification_status = EXCLUDED.verification_status,
			verified_by = EXCLUDED.verified_by,
			verified_at = EXCLUDED.verified_at,
			verification_notes = EXCLUDED.verification_notes,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.DealID, rec.ModelID, rec.Field, valueJSON, rec.SourceType,
		nullString(rec.SourceDocID), nullString(rec.SourceField), rec.ExtractedAt, rec.ExtractionConfidence,
		rec.VerificationStatus, nullString(rec.VerifiedBy), rec.VerifiedAt, nullString(rec.VerificationNotes),
		historyJSON, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lineage: %w", err)
	}
	return nil
}

// List returns all lineage records for a deal model
func (r *PostgresRepository) List(ctx context.Context, dealID, modelID string) ([]*Record, error) {
	query := `SELECT ` + lineageColumns + `
		FROM data_lineage
		WHERE deal_id = $1 AND model_id = $2
		ORDER BY field`

	rows, err := r.db.QueryContext(ctx, query, dealID, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresRepository) scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var valueJSON, historyJSON []byte
	var sourceDocID, sourceField, verifiedBy, notes sql.NullString
	var extractedAt, verifiedAt sql.NullTime
	var confidence sql.NullFloat64

	err := row.Scan(
		&rec.DealID, &rec.ModelID, &rec.Field, &valueJSON, &rec.SourceType,
		&sourceDocID, &sourceField, &extractedAt, &confidence,
		&rec.VerificationStatus, &verifiedBy, &verifiedAt, &notes,
		&historyJSON, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lineage: %w", err)
	}

	_ = json.Unmarshal(valueJSON, &rec.CurrentValue)
	// Unparseable history degrades to empty, never an error.
	rec.History = []HistoryEntry{}
	_ = json.Unmarshal(historyJSON, &rec.History)

	rec.SourceDocID = sourceDocID.String
	rec.SourceField = sourceField.String
	rec.VerifiedBy = verifiedBy.String
	rec.VerificationNotes = notes.String
	if extractedAt.Valid {
		rec.ExtractedAt = &extractedAt.Time
	}
	if verifiedAt.Valid {
		rec.VerifiedAt = &verifiedAt.Time
	}
	if confidence.Valid {
		rec.ExtractionConfidence = &confidence.Float64
	}
	return &rec, nil
}

// CreateTables creates the lineage table if it does not exist.
func (r *PostgresRepository) CreateTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS data_lineage (
		deal_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		field TEXT NOT NULL,
		current_value JSONB,
		source_type TEXT NOT NULL,
		source_doc_id TEXT,
		source_field TEXT,
		extracted_at TIMESTAMPTZ,
		extraction_confidence DOUBLE PRECISION,
		verification_status TEXT NOT NULL,
		verified_by TEXT,
		verified_at TIMESTAMPTZ,
		verification_notes TEXT,
		history JSONB NOT NULL DEFAULT '[]',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (deal_id, model_id, field)
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create lineage table: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
