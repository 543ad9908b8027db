// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status values for invocation metrics.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusUnsupported = "unsupported"
)

// Invocations counts provider invocations by provider, op and status.
// Use RegisterMetrics to register this with a Prometheus registry.
var Invocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "msgprov_provider_invocations_total",
		Help: "Total number of provider invocations",
	},
	[]string{"provider", "op", "status"},
)

// InvocationDuration observes provider invocation latency.
// Use RegisterMetrics to register this with a Prometheus registry.
var InvocationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "msgprov_provider_invocation_duration_seconds",
		Help:    "Provider invocation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider", "op"},
)

// RegisterMetrics registers provider metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Invocations)
	reg.MustRegister(InvocationDuration)
}

// RecordInvocation records one invocation.
func RecordInvocation(provider, op, status string, d time.Duration) {
	Invocations.WithLabelValues(provider, op, status).Inc()
	InvocationDuration.WithLabelValues(provider, op).Observe(d.Seconds())
}

// outcome reads the status of an invocation from its JSON output: an
// object with "ok": false is an error, anything else succeeded.
func outcome(out []byte) string {
	var probe struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return StatusOK
	}
	if probe.OK != nil && !*probe.OK {
		return StatusError
	}
	return StatusOK
}
