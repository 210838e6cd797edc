// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import "errors"

var (
	// ErrConflictNotFound is returned when a conflict ID has no row
	ErrConflictNotFound = errors.New("extraction conflict not found")

	// ErrConflictClosed is returned when resolve or dismiss targets a
	// conflict that is already terminal
	ErrConflictClosed = errors.New("conflict is already resolved or dismissed")

	// ErrMissingReason is returned when a dismissal lacks a reason
	ErrMissingReason = errors.New("dismissal reason is required")

	// ErrUnknownDocumentType is returned for a document type outside the
	// reliability table
	ErrUnknownDocumentType = errors.New("unknown document type")
)
