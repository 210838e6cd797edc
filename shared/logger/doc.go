// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package logger provides structured JSON logging for all gateway
// components. Every entry carries the component name, deployment instance,
// and the user/request pair so logs from a single AI request can be
// correlated across the guard chain.
package logger
