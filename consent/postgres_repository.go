// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetRecord retrieves the consent record for a user
func (r *PostgresRepository) GetRecord(ctx context.Context, userID string) (*Record, error) {
	query := `
		SELECT id, user_id, organization_id, consent_given, consent_version,
			   consented_at, withdrawn_at, expires_at,
			   allow_deal_parsing, allow_chat_assistant, allow_document_analysis, allow_insights,
			   consent_method, ip_address, user_agent, created_at, updated_at
		FROM ai_consents
		WHERE user_id = $1
	`

	var rec Record
	var consentedAt, withdrawnAt, expiresAt sql.NullTime
	var ipAddress, userAgent sql.NullString

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.ID, &rec.UserID, &rec.OrganizationID, &rec.ConsentGiven, &rec.ConsentVersion,
		&consentedAt, &withdrawnAt, &expiresAt,
		&rec.AllowDealParsing, &rec.AllowChatAssistant, &rec.AllowDocumentAnalysis, &rec.AllowInsights,
		&rec.ConsentMethod, &ipAddress, &userAgent, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent record: %w", err)
	}

	if consentedAt.Valid {
		rec.ConsentedAt = &consentedAt.Time
	}
	if withdrawnAt.Valid {
		rec.WithdrawnAt = &withdrawnAt.Time
	}
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	rec.IPAddress = ipAddress.String
	rec.UserAgent = userAgent.String

	return &rec, nil
}

// UpsertRecord inserts or replaces the consent record for a user. The
// unique constraint on user_id serializes concurrent mutations.
func (r *PostgresRepository) UpsertRecord(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO ai_consents (
			id, user_id, organization_id, consent_given, consent_version,
			consented_at, withdrawn_at, expires_at,
			allow_deal_parsing, allow_chat_assistant, allow_document_analysis, allow_insights,
			consent_method, ip_address, user_agent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id) DO UPDATE SET
			consent_given = EXCLUDED.consent_given,
			consent_version = EXCLUDED.consent_version,
			consented_at = EXCLUDED.consented_at,
			withdrawn_at = EXCLUDED.withdrawn_at,
			expires_at = EXCLUDED.expires_at,
			allow_deal_parsing = EXCLUDED.allow_deal_parsing,
			allow_chat_assistant = EXCLUDED.allow_chat_assistant,
			allow_document_analysis = EXCLUDED.allow_document_analysis,
			allow_insights = EXCLUDED.allow_insights,
			consent_method = EXCLUDED.consent_method,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.OrganizationID, rec.ConsentGiven, rec.ConsentVersion,
		nullTime(rec.ConsentedAt), nullTime(rec.WithdrawnAt), nullTime(rec.ExpiresAt),
		rec.AllowDealParsing, rec.AllowChatAssistant, rec.AllowDocumentAnalysis, rec.AllowInsights,
		rec.ConsentMethod, nullString(rec.IPAddress), nullString(rec.UserAgent),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert consent record: %w", err)
	}
	return nil
}

// AppendAudit writes one audit row. Rows are never updated.
func (r *PostgresRepository) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	var beforeJSON, afterJSON []byte
	var err error

	if entry.BeforeState != nil {
		beforeJSON, err = json.Marshal(entry.BeforeState)
		if err != nil {
			return fmt.Errorf("failed to marshal before state: %w", err)
		}
	}
	afterJSON, err = json.Marshal(entry.AfterState)
	if err != nil {
		return fmt.Errorf("failed to marshal after state: %w", err)
	}

	query := `
		INSERT INTO ai_consent_audits (
			user_id, consent_id, action, policy_version,
			before_state, after_state, ip_address, user_agent, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.UserID, entry.ConsentID, entry.Action, entry.PolicyVersion,
		nullBytes(beforeJSON), afterJSON,
		nullString(entry.IPAddress), nullString(entry.UserAgent), nullString(entry.Reason),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append consent audit: %w", err)
	}
	return nil
}

// ListAudit returns the newest audit rows for a user.
func (r *PostgresRepository) ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, consent_id, action, policy_version,
			   before_state, after_state, ip_address, user_agent, reason, created_at
		FROM ai_consent_audits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent audits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var beforeJSON, afterJSON []byte
		var ipAddress, userAgent, reason sql.NullString

		if err := rows.Scan(
			&e.ID, &e.UserID, &e.ConsentID, &e.Action, &e.PolicyVersion,
			&beforeJSON, &afterJSON, &ipAddress, &userAgent, &reason, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan consent audit: %w", err)
		}

		if len(beforeJSON) > 0 {
			_ = json.Unmarshal(beforeJSON, &e.BeforeState)
		}
		_ = json.Unmarshal(afterJSON, &e.AfterState)
		e.IPAddress = ipAddress.String
		e.UserAgent = userAgent.String
		e.Reason = reason.String

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping verifies database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateTables creates the consent tables if they do not exist.
func (r *PostgresRepository) CreateTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS ai_consents (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			organization_id TEXT NOT NULL,
			consent_given BOOLEAN NOT NULL DEFAULT FALSE,
			consent_version TEXT NOT NULL,
			consented_at TIMESTAMPTZ,
			withdrawn_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ,
			allow_deal_parsing BOOLEAN NOT NULL DEFAULT FALSE,
			allow_chat_assistant BOOLEAN NOT NULL DEFAULT FALSE,
			allow_document_analysis BOOLEAN NOT NULL DEFAULT FALSE,
			allow_insights BOOLEAN NOT NULL DEFAULT FALSE,
			consent_method TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ai_consent_audits (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			consent_id UUID NOT NULL,
			action TEXT NOT NULL,
			policy_version TEXT NOT NULL,
			before_state JSONB,
			after_state JSONB NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_consent_audits_user ON ai_consent_audits(user_id, created_at DESC);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create consent tables: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
