// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dealgate/platform/shared/logger"
)

const (
	queueCapacity = 10000
	batchSize     = 100
	flushInterval = 5 * time.Second
)

// Logger queues audit records and writes them in batches. Auditing is
// best-effort: a full queue falls back to a direct write and a failed
// write logs without propagating.
type Logger struct {
	db           *sql.DB
	batch        *batchWriter
	queue        chan *Record
	wg           sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	log          *logger.Logger
}

// NewLogger builds an audit logger over an open database handle.
// A nil db yields a no-op logger so callers never branch.
func NewLogger(db *sql.DB, log *logger.Logger) (*Logger, error) {
	if log == nil {
		log = logger.New("audit")
	}

	l := &Logger{
		db:           db,
		queue:        make(chan *Record, queueCapacity),
		shutdownChan: make(chan struct{}),
		log:          log,
	}

	if db != nil {
		if err := createTables(db); err != nil {
			return nil, err
		}
		l.batch = newBatchWriter(db, batchSize, log)
	}

	l.wg.Add(1)
	go l.processQueue()

	return l, nil
}

// Write enqueues one record, filling in ID, timestamp, summary, and
// response length when absent.
func (l *Logger) Write(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.PromptSummary == "" {
		rec.PromptSummary = Summarize(rec.FullPrompt)
	}
	if rec.ResponseLength == 0 {
		rec.ResponseLength = len(rec.FullResponse)
	}

	select {
	case l.queue <- rec:
	default:
		l.log.Warn(rec.UserID, rec.RequestID, "audit queue full, writing directly", nil)
		if l.batch != nil {
			if err := l.batch.write([]*Record{rec}); err != nil {
				l.log.Error(rec.UserID, rec.RequestID, "direct audit write failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// HashSystemPrompt returns the hex SHA-256 of a system prompt so audit
// rows can prove which prompt version served a request without storing it.
func HashSystemPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func (l *Logger) processQueue() {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-l.queue:
			if l.batch != nil {
				l.batch.add(rec)
			}
		case <-ticker.C:
			if l.batch != nil {
				l.batch.flushAll()
			}
		case <-l.shutdownChan:
			for {
				select {
				case rec := <-l.queue:
					if l.batch != nil {
						l.batch.add(rec)
					}
				default:
					if l.batch != nil {
						l.batch.flushAll()
					}
					return
				}
			}
		}
	}
}

// Close drains the queue and stops the background worker.
func (l *Logger) Close() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownChan)
	})
	l.wg.Wait()
}

// SearchOptions filter an audit query.
type SearchOptions struct {
	UserID    string
	DealID    string
	Endpoint  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Search returns matching audit rows newest first.
func (l *Logger) Search(ctx context.Context, opts SearchOptions) ([]*Record, error) {
	if l.db == nil {
		return nil, nil
	}

	query := `
		SELECT id, request_id, timestamp, user_id, role, organization_id, deal_id,
			   endpoint, prompt_summary, model_used, context_fields, response_length,
			   validation_passed, validation_issues, reason, security_context
		FROM ai_audits
		WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if opts.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, opts.UserID)
		argIndex++
	}
	if opts.DealID != "" {
		query += fmt.Sprintf(" AND deal_id = $%d", argIndex)
		args = append(args, opts.DealID)
		argIndex++
	}
	if opts.Endpoint != "" {
		query += fmt.Sprintf(" AND endpoint = $%d", argIndex)
		args = append(args, opts.Endpoint)
		argIndex++
	}
	if !opts.StartTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, opts.StartTime)
		argIndex++
	}
	if !opts.EndTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, opts.EndTime)
		argIndex++
	}

	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var dealID, modelUsed, reason sql.NullString
		var contextJSON, issuesJSON, securityJSON []byte

		if err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.Timestamp, &rec.UserID, &rec.Role,
			&rec.OrganizationID, &dealID, &rec.Endpoint, &rec.PromptSummary,
			&modelUsed, &contextJSON, &rec.ResponseLength,
			&rec.ValidationPassed, &issuesJSON, &reason, &securityJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}

		rec.DealID = dealID.String
		rec.ModelUsed = modelUsed.String
		rec.Reason = reason.String
		_ = json.Unmarshal(contextJSON, &rec.ContextFields)
		_ = json.Unmarshal(issuesJSON, &rec.ValidationIssues)
		_ = json.Unmarshal(securityJSON, &rec.Security)

		records = append(records, rec)
	}
	return records, rows.Err()
}

// batchWriter accumulates records and flushes in one transaction.
type batchWriter struct {
	db        *sql.DB
	batchSize int
	entries   []*Record
	mu        sync.Mutex
	log       *logger.Logger
}

func newBatchWriter(db *sql.DB, size int, log *logger.Logger) *batchWriter {
	return &batchWriter{
		db:        db,
		batchSize: size,
		entries:   make([]*Record, 0, size),
		log:       log,
	}
}

func (b *batchWriter) add(rec *Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, rec)
	if len(b.entries) >= b.batchSize {
		b.flushLocked()
	}
}

func (b *batchWriter) flushAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *batchWriter) flushLocked() {
	if len(b.entries) == 0 {
		return
	}
	if err := b.write(b.entries); err != nil {
		b.log.Error("", "", "failed to write audit batch", map[string]interface{}{
			"count": len(b.entries),
			"error": err.Error(),
		})
	}
	b.entries = b.entries[:0]
}

func (b *batchWriter) write(entries []*Record) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO ai_audits (
			id, request_id, timestamp, user_id, role, organization_id, deal_id,
			endpoint, prompt_summary, full_prompt, full_response, system_prompt_hash,
			model_used, context_fields, response_length, validation_passed,
			validation_issues, reason, security_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range entries {
		contextJSON, _ := json.Marshal(rec.ContextFields)
		issuesJSON, _ := json.Marshal(rec.ValidationIssues)
		securityJSON, _ := json.Marshal(rec.Security)

		if _, err := stmt.Exec(
			rec.ID, rec.RequestID, rec.Timestamp, rec.UserID, rec.Role,
			rec.OrganizationID, nullString(rec.DealID), rec.Endpoint,
			rec.PromptSummary, rec.FullPrompt, rec.FullResponse,
			nullString(rec.SystemPromptHash), nullString(rec.ModelUsed),
			contextJSON, rec.ResponseLength, rec.ValidationPassed,
			issuesJSON, nullString(rec.Reason), securityJSON,
		); err != nil {
			b.log.Error(rec.UserID, rec.RequestID, "failed to insert audit row", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return tx.Commit()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ai_audits (
		id UUID PRIMARY KEY,
		request_id TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		organization_id TEXT NOT NULL DEFAULT '',
		deal_id TEXT,
		endpoint TEXT NOT NULL,
		prompt_summary TEXT NOT NULL,
		full_prompt TEXT NOT NULL,
		full_response TEXT NOT NULL DEFAULT '',
		system_prompt_hash TEXT,
		model_used TEXT,
		context_fields JSONB NOT NULL DEFAULT '[]',
		response_length INTEGER NOT NULL DEFAULT 0,
		validation_passed BOOLEAN NOT NULL DEFAULT TRUE,
		validation_issues JSONB NOT NULL DEFAULT '[]',
		reason TEXT,
		security_context JSONB NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_ai_audits_user_time ON ai_audits(user_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_ai_audits_deal ON ai_audits(deal_id) WHERE deal_id IS NOT NULL;
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create audit tables: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
