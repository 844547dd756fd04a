// Package metrics holds the Prometheus collectors for the entitlement core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts engine transitions by event and outcome.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "entitlement",
		Name:      "transitions_total",
		Help:      "Subscription state transitions by event and outcome.",
	}, []string{"event", "outcome"})

	// ValidationsTotal counts API key validation calls by result.
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "entitlement",
		Name:      "validations_total",
		Help:      "API key validations by result (valid/invalid/error).",
	}, []string{"result"})

	// ValidationDuration tracks validation latency.
	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "billing",
		Subsystem: "entitlement",
		Name:      "validation_duration_seconds",
		Help:      "API key validation duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// GatewayCallsTotal counts calls to the payment provider.
	GatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Payment gateway calls by operation and outcome.",
	}, []string{"op", "outcome"})

	// PaymentVerificationsTotal counts confirmation signature checks.
	PaymentVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "gateway",
		Name:      "payment_verifications_total",
		Help:      "Payment confirmation signature checks by result.",
	}, []string{"result"})
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeRefused = "refused"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)
