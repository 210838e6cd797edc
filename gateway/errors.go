// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	errMissingToken     = errors.New("missing bearer token")
	errInvalidToken     = errors.New("invalid token")
	errBadSigningMethod = errors.New("unexpected signing method")
	errMissingUserClaim = errors.New("token has no user_id claim")
)

// Machine-readable reason codes. Clients branch on these; the message
// text is free to change.
const (
	ReasonAuthRequired        = "auth_required"
	ReasonAccessDenied        = "access_denied"
	ReasonNotFound            = "not_found"
	ReasonValidationFailed    = "validation_failed"
	ReasonSecurityBlocked     = "security_blocked"
	ReasonRateLimited         = "rate_limited"
	ReasonConsentRequired     = "consent_required"
	ReasonEvalFailed          = "eval_failed"
	ReasonSchemaInvalid       = "schema_invalid"
	ReasonProviderUnavailable = "provider_unavailable"
	ReasonInternal            = "internal"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, errorBody{
		Error:   http.StatusText(status),
		Reason:  reason,
		Message: message,
	})
}
