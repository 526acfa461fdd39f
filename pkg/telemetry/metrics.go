package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors shared across packages. Registered on the default
// registry, exposed through the /metrics handler returned by Setup.
var (
	// EventsAppended counts events durably appended to the event store.
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_events_appended_total",
		Help: "Events appended to the event store.",
	}, []string{"aggregate_type", "event_type"})

	// SchemaValidationWarnings counts envelope schema failures at the store
	// boundary. Warn-only: the append still happens.
	SchemaValidationWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_event_schema_warnings_total",
		Help: "Events appended despite failing envelope schema validation.",
	}, []string{"event_type"})

	// DeadLetters counts inputs handed to the dead-letter sink.
	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_dead_letters_total",
		Help: "Inputs routed to the dead-letter sink.",
	}, []string{"source", "reason"})

	// BreakerState reports circuit breaker state per dependency
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fulfillment_circuit_breaker_state",
		Help: "Circuit breaker state per dependency (0=closed, 1=half-open, 2=open).",
	}, []string{"dependency"})

	// NotificationsSent counts successfully delivered notifications.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_notifications_sent_total",
		Help: "Notifications delivered per channel.",
	}, []string{"channel"})

	// PaymentOutcomes counts terminal payment results.
	PaymentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_payment_outcomes_total",
		Help: "Terminal payment outcomes (authorized, failed).",
	}, []string{"outcome"})
)
