package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ghuser/fulfillment/pkg/database"
	"github.com/ghuser/fulfillment/pkg/logger"
	"github.com/ghuser/fulfillment/pkg/telemetry"
)

// PostgresStore implements Store against the events table.
// The table carries a unique index on event_id and a unique compound index on
// (aggregate_id, version); constraint violations are mapped to the sentinel
// errors by constraint name.
type PostgresStore struct {
	db  *database.Database
	log logger.Logger
}

// NewPostgresStore returns a PostgresStore backed by the given pool.
func NewPostgresStore(db *database.Database, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

const insertEventSQL = `
INSERT INTO events (
	event_id, event_type, aggregate_id, aggregate_type, version,
	correlation_id, causation_id, occurred_at, payload, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Append persists the event. Schema validation is warn-only at this boundary.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	warnOnInvalid(ctx, s.log, event)

	_, err := s.db.DB().ExecContext(ctx, insertEventSQL, insertArgs(event)...)
	if err != nil {
		return mapAppendError(err)
	}
	telemetry.EventsAppended.WithLabelValues(event.AggregateType, event.EventType).Inc()
	return nil
}

// AppendTx persists the event inside the caller's transaction. Used together
// with the bus's transaction-bound publisher so an event is durably stored
// and published in one commit.
func (s *PostgresStore) AppendTx(ctx context.Context, tx *sql.Tx, event Event) error {
	warnOnInvalid(ctx, s.log, event)

	_, err := tx.ExecContext(ctx, insertEventSQL, insertArgs(event)...)
	if err != nil {
		return mapAppendError(err)
	}
	telemetry.EventsAppended.WithLabelValues(event.AggregateType, event.EventType).Inc()
	return nil
}

func insertArgs(e Event) []any {
	var causation any
	if e.CausationID != nil {
		causation = *e.CausationID
	}
	metadata := []byte("{}")
	if e.Metadata != nil {
		metadata, _ = json.Marshal(e.Metadata)
	}
	payload := e.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return []any{
		e.EventID, e.EventType, e.AggregateID, e.AggregateType, e.Version,
		e.CorrelationID, causation, e.OccurredAt, []byte(payload), metadata,
	}
}

func mapAppendError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, "event_id"):
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, pgErr.ConstraintName)
		case strings.Contains(pgErr.ConstraintName, "aggregate"):
			return fmt.Errorf("%w: %s", ErrVersionConflict, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("eventstore: append: %w", err)
}

// ReadStream returns the aggregate's events ordered by version from 1.
func (s *PostgresStore) ReadStream(ctx context.Context, aggregateID string) ([]Event, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT event_id, event_type, aggregate_id, aggregate_type, version,
		       correlation_id, causation_id, occurred_at, payload, metadata
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: read stream: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanEvents(rows)
}

// ReadByCorrelation returns every event in one business transaction.
func (s *PostgresStore) ReadByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]Event, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT event_id, event_type, aggregate_id, aggregate_type, version,
		       correlation_id, causation_id, occurred_at, payload, metadata
		FROM events
		WHERE correlation_id = $1
		ORDER BY occurred_at ASC`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: read by correlation: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			e         Event
			causation sql.Null[uuid.UUID]
			payload   []byte
			metadata  []byte
		)
		if err := rows.Scan(
			&e.EventID, &e.EventType, &e.AggregateID, &e.AggregateType, &e.Version,
			&e.CorrelationID, &causation, &e.OccurredAt, &payload, &metadata,
		); err != nil {
			return nil, fmt.Errorf("eventstore: scan event: %w", err)
		}
		if causation.Valid {
			id := causation.V
			e.CausationID = &id
		}
		e.Payload = json.RawMessage(payload)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("eventstore: unmarshal metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: iterate events: %w", err)
	}
	return out, nil
}
