// Package deadletter is the durable sink for inputs that cannot be processed:
// retry-exhausted tasks and malformed events. Dead letters are recorded for
// operator attention, never retried automatically and never dropped silently.
package deadletter

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one dead-lettered input.
type Entry struct {
	// Source names the consumer or scheduler job that gave up.
	Source string
	// Kind distinguishes why the entry is here ("retry_exhausted", "malformed").
	Kind string
	// Key is the business identifier (order id, event id) for triage.
	Key string
	// Payload carries enough context to replay the input manually.
	Payload json.RawMessage
	// Reason is the final error message.
	Reason string
	// Attempts is how many times processing was tried before giving up.
	Attempts int
	// OccurredAt is when the entry was sunk.
	OccurredAt time.Time
}

// Sink records dead letters durably.
type Sink interface {
	Sink(ctx context.Context, entry Entry) error
}
