// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package ratelimit provides sliding-window request accounting across two
// scopes (user, organization) and two horizons (minute, day).
//
// The default MemoryLimiter keeps process-local state behind a per-scope
// mutex and evicts idle entries hourly. RedisLimiter is a drop-in
// distributed variant for multi-instance deployments; it fails open when
// Redis is unreachable.
package ratelimit
