// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import "context"

// Repository defines the interface for extraction persistence
type Repository interface {
	// SaveExtraction writes one immutable extraction row.
	SaveExtraction(ctx context.Context, extraction *DocumentExtraction) error

	// ListExtractions returns all extractions for a deal, newest first.
	ListExtractions(ctx context.Context, dealID string) ([]*DocumentExtraction, error)

	// GetConflictByField returns the conflict for (deal, canonical
	// field), or ErrConflictNotFound.
	GetConflictByField(ctx context.Context, dealID, field string) (*Conflict, error)

	// SaveConflict inserts or fully replaces a conflict row.
	SaveConflict(ctx context.Context, conflict *Conflict) error

	// GetConflict loads a conflict by ID.
	GetConflict(ctx context.Context, id string) (*Conflict, error)

	// ListConflicts returns all conflicts for a deal, optionally
	// filtered by status.
	ListConflicts(ctx context.Context, dealID, status string) ([]*Conflict, error)
}
