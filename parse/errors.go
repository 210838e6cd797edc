// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID has no row
	ErrSessionNotFound = errors.New("parse session not found")

	// ErrNotEvalFailed is returned when force-accept targets a session
	// that is not in EVAL_FAILED status
	ErrNotEvalFailed = errors.New("session is not in EVAL_FAILED status")

	// ErrMissingRationale is returned when force-accept lacks a rationale
	ErrMissingRationale = errors.New("force-accept rationale is required")
)
