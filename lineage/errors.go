// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package lineage

import "errors"

var (
	// ErrRecordNotFound is returned when no lineage exists for a field
	ErrRecordNotFound = errors.New("lineage record not found")

	// ErrInvalidSourceType is returned for a source type outside the
	// recognized set
	ErrInvalidSourceType = errors.New("invalid source type")
)
