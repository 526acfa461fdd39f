package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/fulfillment/pkg/database"
)

// PostgresLedger implements Ledger on the idempotency_claims table.
// Entries never expire — this is the ledger for payment-affecting consumers,
// where replaying a stale outcome is always safer than re-charging.
type PostgresLedger struct {
	db    *database.Database
	lease time.Duration
}

// NewPostgresLedger returns a PostgresLedger. lease bounds how long a crashed
// consumer's in_progress claim blocks redelivery; pass 0 for DefaultLease.
func NewPostgresLedger(db *database.Database, lease time.Duration) *PostgresLedger {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &PostgresLedger{db: db, lease: lease}
}

// TryClaim inserts the claim row; on conflict it inspects the existing row.
// A stale in_progress claim (older than the lease) is taken over in the same
// statement, so crash recovery needs no operator action.
func (l *PostgresLedger) TryClaim(ctx context.Context, consumer string, eventID uuid.UUID) (Claim, error) {
	res, err := l.db.DB().ExecContext(ctx, `
		INSERT INTO idempotency_claims (consumer, event_id, status, claimed_at)
		VALUES ($1, $2, 'in_progress', now())
		ON CONFLICT (consumer, event_id) DO UPDATE
			SET claimed_at = now()
			WHERE idempotency_claims.status = 'in_progress'
			  AND idempotency_claims.claimed_at < now() - $3::interval`,
		consumer, eventID, l.lease.String())
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: try claim: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return Claim{State: Granted}, nil
	}

	var (
		status  string
		outcome []byte
	)
	err = l.db.DB().QueryRowContext(ctx, `
		SELECT status, outcome FROM idempotency_claims
		WHERE consumer = $1 AND event_id = $2`,
		consumer, eventID).Scan(&status, &outcome)
	if errors.Is(err, sql.ErrNoRows) {
		// Claim vanished between insert and select (released concurrently).
		return Claim{State: InProgress}, nil
	}
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: read claim: %w", err)
	}

	if status == "processed" {
		return Claim{State: Processed, Outcome: json.RawMessage(outcome)}, nil
	}
	return Claim{State: InProgress}, nil
}

// MarkProcessed stores the outcome and flips the claim to processed.
func (l *PostgresLedger) MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID, outcome json.RawMessage) error {
	if outcome == nil {
		outcome = json.RawMessage("null")
	}
	_, err := l.db.DB().ExecContext(ctx, `
		UPDATE idempotency_claims
		SET status = 'processed', outcome = $3, completed_at = now()
		WHERE consumer = $1 AND event_id = $2`,
		consumer, eventID, []byte(outcome))
	if err != nil {
		return fmt.Errorf("idempotency: mark processed: %w", err)
	}
	return nil
}

// Release drops an in_progress claim so redelivery can retry.
func (l *PostgresLedger) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	_, err := l.db.DB().ExecContext(ctx, `
		DELETE FROM idempotency_claims
		WHERE consumer = $1 AND event_id = $2 AND status = 'in_progress'`,
		consumer, eventID)
	if err != nil {
		return fmt.Errorf("idempotency: release claim: %w", err)
	}
	return nil
}
