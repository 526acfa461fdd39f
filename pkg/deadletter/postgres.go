package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghuser/fulfillment/pkg/database"
	"github.com/ghuser/fulfillment/pkg/logger"
	"github.com/ghuser/fulfillment/pkg/telemetry"
)

// PostgresSink records dead letters in the dead_letters table and raises an
// error-level log line as the operator alert.
type PostgresSink struct {
	db  *database.Database
	log logger.Logger
}

// NewPostgresSink returns a PostgresSink backed by the given pool.
func NewPostgresSink(db *database.Database, log logger.Logger) *PostgresSink {
	return &PostgresSink{db: db, log: log}
}

// Sink inserts the entry. The write must succeed — a dead letter that cannot
// be recorded is surfaced to the caller rather than swallowed.
func (s *PostgresSink) Sink(ctx context.Context, entry Entry) error {
	payload := entry.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO dead_letters (source, kind, key, payload, reason, attempts, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Source, entry.Kind, entry.Key, []byte(payload), entry.Reason, entry.Attempts, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("deadletter: insert: %w", err)
	}

	telemetry.DeadLetters.WithLabelValues(entry.Source, entry.Kind).Inc()
	s.log.ErrorContext(ctx, "dead letter recorded",
		"source", entry.Source,
		"kind", entry.Kind,
		"key", entry.Key,
		"attempts", entry.Attempts,
		"reason", entry.Reason,
	)
	return nil
}
