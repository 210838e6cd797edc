// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package security implements the prompt-level security pipeline that wraps
// every LLM call: input sanitization (homoglyph and delimiter defense),
// weighted jailbreak scoring, and response validation for SQL-injection,
// code-injection, and secret-exfiltration shapes.
//
// The pipeline is purely functional aside from logging; it holds no shared
// mutable state and is safe for concurrent use.
package security
