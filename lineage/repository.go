// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package lineage

import "context"

// Repository defines the interface for lineage persistence
type Repository interface {
	// Get loads the lineage for one (deal, model, field), or
	// ErrRecordNotFound.
	Get(ctx context.Context, dealID, modelID, field string) (*Record, error)

	// Upsert writes a lineage record keyed by (deal, model, field).
	Upsert(ctx context.Context, record *Record) error

	// List returns all lineage records for a deal model.
	List(ctx context.Context, dealID, modelID string) ([]*Record, error)
}
