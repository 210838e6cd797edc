// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

import "context"

// Repository defines the interface for parse-session persistence
type Repository interface {
	// CreateSession writes a new PENDING session row.
	CreateSession(ctx context.Context, session *Session) error

	// FinishSession moves a session to its terminal state and writes all
	// provenance rows in the same transaction.
	FinishSession(ctx context.Context, session *Session, provenances []Provenance) error

	// GetSession loads a session with its provenance rows.
	GetSession(ctx context.Context, id string) (*Session, []Provenance, error)

	// ForceAccept flips an EVAL_FAILED session to OK with a rationale.
	ForceAccept(ctx context.Context, id, rationale string) (*Session, error)
}
