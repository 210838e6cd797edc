// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealgate_gateway_requests_total",
			Help: "Total AI gateway requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	gatewayGuardDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealgate_gateway_guard_denials_total",
			Help: "Guard-chain denials by guard and reason",
		},
		[]string{"guard", "reason"},
	)
	gatewayLLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealgate_gateway_llm_duration_milliseconds",
			Help:    "LLM call duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"endpoint", "provider"},
	)
	gatewayLLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealgate_gateway_llm_tokens_total",
			Help: "LLM tokens consumed via the gateway",
		},
		[]string{"provider", "model", "type"},
	)
)

// gatewayMetricsOnce ensures metrics are registered only once
var gatewayMetricsOnce sync.Once

func init() {
	registerGatewayMetrics()
}

// registerGatewayMetrics registers all gateway metrics once (safe for multiple calls)
func registerGatewayMetrics() {
	gatewayMetricsOnce.Do(func() {
		_ = prometheus.Register(gatewayRequestsTotal)
		_ = prometheus.Register(gatewayGuardDenials)
		_ = prometheus.Register(gatewayLLMDuration)
		_ = prometheus.Register(gatewayLLMTokensTotal)
	})
}
