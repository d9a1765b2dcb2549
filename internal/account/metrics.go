// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for operation metrics.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Operations counts account operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "welwitschi_account_operations_total",
		Help: "Total number of account operations by operation and result",
	},
	[]string{"operation", "result"},
)

// RegisterMetrics registers account package metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
}

// recordOperation increments the operation counter. A non-nil err wins over ok.
func recordOperation(operation string, ok bool, err error) {
	result := ResultSuccess
	switch {
	case err != nil:
		result = ResultError
	case !ok:
		result = ResultRejected
	}
	Operations.WithLabelValues(operation, result).Inc()
}
