// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

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

// CreateSession writes the initial PENDING row
func (r *PostgresRepository) CreateSession(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO parse_sessions (
			id, user_id, input_text, input_source, provider, model,
			prompt_version, schema_version, status, attempts, raw_responses,
			latency_ms, force_accepted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	rawJSON, err := json.Marshal(s.RawResponses)
	if err != nil {
		return fmt.Errorf("failed to marshal raw responses: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		s.ID, nullString(s.UserID), s.InputText, s.InputSource, s.Provider, s.Model,
		s.PromptVersion, s.SchemaVersion, s.Status, s.Attempts, rawJSON,
		s.LatencyMs, s.ForceAccepted, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create parse session: %w", err)
	}
	return nil
}

// FinishSession persists the terminal state and all provenance rows in
// one transaction.
func (r *PostgresRepository) FinishSession(ctx context.Context, s *Session, provenances []Provenance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rawJSON, err := json.Marshal(s.RawResponses)
	if err != nil {
		return fmt.Errorf("failed to marshal raw responses: %w", err)
	}
	var parsedJSON, reportJSON []byte
	if s.ParsedResult != nil {
		if parsedJSON, err = json.Marshal(s.ParsedResult); err != nil {
			return fmt.Errorf("failed to marshal parsed result: %w", err)
		}
	}
	if s.Report != nil {
		if reportJSON, err = json.Marshal(s.Report); err != nil {
			return fmt.Errorf("failed to marshal evaluator report: %w", err)
		}
	}

	query := `
		UPDATE parse_sessions SET
			status = $2, attempts = $3, raw_responses = $4, parsed_result = $5,
			evaluator_report = $6, latency_ms = $7, completed_at = $8
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query,
		s.ID, s.Status, s.Attempts, rawJSON, nullBytes(parsedJSON),
		nullBytes(reportJSON), s.LatencyMs, s.CompletedAt,
	); err != nil {
		return fmt.Errorf("failed to finish parse session: %w", err)
	}

	provQuery := `
		INSERT INTO field_provenances (
			session_id, field_path, value, source, confidence,
			rationale, evidence_needed, artifact_id, as_of
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, p := range provenances {
		valueJSON, err := json.Marshal(p.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal provenance value: %w", err)
		}
		if _, err := tx.ExecContext(ctx, provQuery,
			p.SessionID, p.FieldPath, valueJSON, p.Source, p.Confidence,
			p.Rationale, nullString(p.EvidenceNeeded), nullString(p.ArtifactID), p.AsOf,
		); err != nil {
			return fmt.Errorf("failed to insert field provenance: %w", err)
		}
	}

	return tx.Commit()
}

// GetSession loads a session with its provenance rows
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*Session, []Provenance, error) {
	query := `
		SELECT id, user_id, input_text, input_source, provider, model,
			   prompt_version, schema_version, status, attempts, raw_responses,
			   parsed_result, evaluator_report, latency_ms, force_accepted,
			   force_accepted_rationale, created_at, completed_at
		FROM parse_sessions
		WHERE id = $1
	`

	var s Session
	var userID, rationale sql.NullString
	var rawJSON, parsedJSON, reportJSON []byte
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &userID, &s.InputText, &s.InputSource, &s.Provider, &s.Model,
		&s.PromptVersion, &s.SchemaVersion, &s.Status, &s.Attempts, &rawJSON,
		&parsedJSON, &reportJSON, &s.LatencyMs, &s.ForceAccepted,
		&rationale, &s.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get parse session: %w", err)
	}

	s.UserID = userID.String
	s.ForceAcceptedRationale = rationale.String
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	_ = json.Unmarshal(rawJSON, &s.RawResponses)
	if len(parsedJSON) > 0 {
		_ = json.Unmarshal(parsedJSON, &s.ParsedResult)
	}
	if len(reportJSON) > 0 {
		_ = json.Unmarshal(reportJSON, &s.Report)
	}

	provQuery := `
		SELECT session_id, field_path, value, source, confidence,
			   rationale, evidence_needed, artifact_id, as_of
		FROM field_provenances
		WHERE session_id = $1
		ORDER BY field_path
	`
	rows, err := r.db.QueryContext(ctx, provQuery, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query provenances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var provenances []Provenance
	for rows.Next() {
		var p Provenance
		var valueJSON []byte
		var evidence, artifact sql.NullString
		if err := rows.Scan(
			&p.SessionID, &p.FieldPath, &valueJSON, &p.Source, &p.Confidence,
			&p.Rationale, &evidence, &artifact, &p.AsOf,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan provenance: %w", err)
		}
		_ = json.Unmarshal(valueJSON, &p.Value)
		p.EvidenceNeeded = evidence.String
		p.ArtifactID = artifact.String
		provenances = append(provenances, p)
	}

	return &s, provenances, rows.Err()
}

// ForceAccept flips an EVAL_FAILED session to OK
func (r *PostgresRepository) ForceAccept(ctx context.Context, id, rationale string) (*Session, error) {
	query := `
		UPDATE parse_sessions SET
			status = $2, force_accepted = TRUE, force_accepted_rationale = $3
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, id, StatusOK, rationale, StatusEvalFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to force-accept session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing session from a wrong-status one.
		s, _, err := r.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.Status != StatusEvalFailed {
			return nil, ErrNotEvalFailed
		}
		return nil, fmt.Errorf("force-accept raced with another update")
	}

	s, _, err := r.GetSession(ctx, id)
	return s, err
}

// CreateTables creates the parse tables if they do not exist.
func (r *PostgresRepository) CreateTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS parse_sessions (
		id UUID PRIMARY KEY,
		user_id TEXT,
		input_text TEXT NOT NULL,
		input_source TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_version TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		raw_responses JSONB NOT NULL DEFAULT '[]',
		parsed_result JSONB,
		evaluator_report JSONB,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		force_accepted BOOLEAN NOT NULL DEFAULT FALSE,
		force_accepted_rationale TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS field_provenances (
		id BIGSERIAL PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES parse_sessions(id),
		field_path TEXT NOT NULL,
		value JSONB,
		source TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		evidence_needed TEXT,
		artifact_id TEXT,
		as_of TIMESTAMPTZ NOT NULL,
		UNIQUE (session_id, field_path)
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create parse tables: %w", err)
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
