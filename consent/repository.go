// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package consent

import "context"

// Repository defines the interface for consent persistence
type Repository interface {
	// Record operations
	GetRecord(ctx context.Context, userID string) (*Record, error)
	UpsertRecord(ctx context.Context, record *Record) error

	// Audit operations
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error)

	// Utility
	Ping(ctx context.Context) error
}
