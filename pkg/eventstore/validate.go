package eventstore

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/ghuser/fulfillment/pkg/logger"
	"github.com/ghuser/fulfillment/pkg/telemetry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEnvelope checks the required wire fields of the envelope.
// Consumers dead-letter events that fail this check instead of crashing.
func ValidateEnvelope(e Event) error {
	return validate.Struct(e)
}

// warnOnInvalid is the store-boundary schema check. Validation failures are
// logged and counted, never rejected, so the append-only log cannot stall on
// schema evolution.
func warnOnInvalid(ctx context.Context, log logger.Logger, e Event) {
	if err := ValidateEnvelope(e); err != nil {
		telemetry.SchemaValidationWarnings.WithLabelValues(e.EventType).Inc()
		log.WarnContext(ctx, "eventstore: appending event that fails schema validation",
			"event_id", e.EventID,
			"event_type", e.EventType,
			"error", err,
		)
	}
}
