// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package identity carries the authenticated caller through request
// contexts. The authentication middleware stores it once; downstream
// handlers and services read it without re-parsing credentials.
package identity

import "context"

type contextKey struct{}

// Identity is the authenticated caller extracted from the JWT.
type Identity struct {
	UserID         string
	OrganizationID string
	Roles          []string
	RequestID      string
	IPAddress      string
	UserAgent      string
}

// HasRole reports whether the caller carries the given role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity, or nil when unauthenticated.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
