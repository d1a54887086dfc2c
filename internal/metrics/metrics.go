// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts processed payment provider deliveries by event
	// kind and handling outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoply",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Payment provider webhook deliveries by kind and outcome.",
	}, []string{"kind", "outcome"})

	// ArtifactRenders counts document generation attempts by result.
	ArtifactRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoply",
		Subsystem: "artifact",
		Name:      "renders_total",
		Help:      "Invoice document renders by result (hit, rendered, lost_race, error).",
	}, []string{"result"})

	// InvoicesCreated counts successfully created invoices.
	InvoicesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "invoply",
		Subsystem: "invoice",
		Name:      "created_total",
		Help:      "Invoices created.",
	})

	// InvoicesPaid counts unpaid to paid transitions (idempotent re-marks
	// are not counted).
	InvoicesPaid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "invoply",
		Subsystem: "invoice",
		Name:      "paid_total",
		Help:      "Invoices transitioned to paid.",
	})
)
