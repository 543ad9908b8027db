// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package ingress

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/greentic/messaging-providers/internal/capability"
)

// Verdicts for webhook metrics.
const (
	VerdictAccepted  = "accepted"
	VerdictRejected  = "rejected"
	VerdictChallenge = "challenge"
)

// WebhookVerdicts counts webhook validations by provider and verdict.
// Use RegisterMetrics to register this with a Prometheus registry.
var WebhookVerdicts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "msgprov_webhook_verdicts_total",
		Help: "Total number of webhook validations by verdict",
	},
	[]string{"provider", "verdict"},
)

// RegisterMetrics registers ingress metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(WebhookVerdicts)
}

// RecordVerdict increments the webhook verdict counter.
func RecordVerdict(provider, verdict string) {
	WebhookVerdicts.WithLabelValues(provider, verdict).Inc()
}

// Check runs v and records the verdict for provider.
func Check(provider string, v Validator) Validator {
	return ValidatorFunc(func(ctx context.Context, headers []capability.Header, body []byte, secrets capability.SecretStore) (Event, error) {
		ev, err := v.Validate(ctx, headers, body, secrets)
		if err != nil {
			RecordVerdict(provider, VerdictRejected)
			return Event{}, err
		}
		RecordVerdict(provider, VerdictAccepted)
		return ev, nil
	})
}
