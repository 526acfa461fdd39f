// Package eventstore defines the event envelope and the append-only,
// replayable store every service communicates through.
//
// Append semantics:
//   - an event is durably persisted exactly once or the call fails
//   - a duplicate eventId fails with ErrDuplicateEvent; callers treat it as
//     success-already-happened
//   - a (aggregateId, version) collision fails with ErrVersionConflict;
//     callers reload the stream and recompute
//
// Events are never mutated, reordered or deleted after append. Growth is
// unbounded: the store is the audit trail.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Aggregate type names. Each owns its own stream partition and topic.
const (
	AggregateOrder        = "Order"
	AggregatePayment      = "Payment"
	AggregateNotification = "Notification"
)

// Sentinel errors for append failures. Use errors.Is() to check these.
var (
	// ErrDuplicateEvent indicates the eventId has already been appended.
	// Safe to ignore: the event is already in the store.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrVersionConflict indicates a concurrent append won the
	// (aggregateId, version) slot. Reload the stream and recompute.
	ErrVersionConflict = errors.New("aggregate version conflict")
)

// Event is the immutable envelope persisted to the store and carried on the
// bus. Field names follow the wire contract shared by all services.
type Event struct {
	EventID       uuid.UUID         `json:"eventId" validate:"required"`
	EventType     string            `json:"eventType" validate:"required"`
	AggregateID   string            `json:"aggregateId" validate:"required"`
	AggregateType string            `json:"aggregateType" validate:"required"`
	Version       int64             `json:"version,omitempty"`
	CorrelationID uuid.UUID         `json:"correlationId" validate:"required"`
	CausationID   *uuid.UUID        `json:"causationId,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt" validate:"required"`
	Payload       json.RawMessage   `json:"payload" validate:"required"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// New builds an envelope for an origin event (no causation) with a fresh
// eventId and timestamp. The payload must already be marshaled.
func New(eventType, aggregateID, aggregateType string, version int64, correlationID uuid.UUID, payload json.RawMessage) Event {
	return Event{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	}
}

// CausedBy returns a copy of e with causationId set to the event that
// triggered it, forming the causal chain.
func (e Event) CausedBy(cause uuid.UUID) Event {
	e.CausationID = &cause
	return e
}

// WithMetadata returns a copy of e with the given metadata key set. Metadata
// carries technical context only and must never drive business decisions.
func (e Event) WithMetadata(key, value string) Event {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// Store is the append-only event log.
type Store interface {
	// Append persists the event atomically. Fails with ErrDuplicateEvent or
	// ErrVersionConflict; any other error is infrastructure-level.
	Append(ctx context.Context, event Event) error

	// ReadStream returns all events for the aggregate in strictly increasing
	// version order, starting at 1. An unknown aggregate yields an empty slice.
	ReadStream(ctx context.Context, aggregateID string) ([]Event, error)

	// ReadByCorrelation returns all events across aggregates belonging to one
	// business transaction. No ordering is guaranteed.
	ReadByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]Event, error)
}
