// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package consent

import "errors"

var (
	// ErrRecordNotFound is returned when a user has no consent record
	ErrRecordNotFound = errors.New("consent record not found")

	// ErrInvalidFeature is returned for an unknown feature identifier
	ErrInvalidFeature = errors.New("invalid consent feature")

	// ErrMissingUserID is returned when an operation lacks a user ID
	ErrMissingUserID = errors.New("user ID is required")
)
