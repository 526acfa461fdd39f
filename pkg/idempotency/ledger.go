// Package idempotency provides the claim ledger that turns at-least-once
// delivery into exactly-once side effects. A consumer claims (consumer,
// eventId) before executing a side effect; a redelivered event finds the
// claim and replays the recorded outcome instead of re-executing.
//
// Claims are unique-constraint inserts, never read-then-write, so two
// competing instances of the same consumer group can never both win.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ClaimState reports the result of TryClaim.
type ClaimState int

const (
	// Granted — the caller owns the claim and must execute the side effect,
	// then MarkProcessed or Release.
	Granted ClaimState = iota

	// InProgress — another instance (or an in-flight retry chain) owns the
	// claim. Skip without executing.
	InProgress

	// Processed — the side effect already ran; Outcome holds its result.
	Processed
)

// Claim is the result of TryClaim. Outcome is non-nil only for Processed.
type Claim struct {
	State   ClaimState
	Outcome json.RawMessage
}

// DefaultLease bounds how long an in_progress claim blocks re-execution.
// A consumer that crashed mid-processing releases its claim implicitly when
// the lease expires, so redelivery can take over.
const DefaultLease = 5 * time.Minute

// Ledger is the dedup/idempotency-key store shared by consumers.
type Ledger interface {
	// TryClaim atomically claims (consumer, eventID). Exactly one concurrent
	// caller receives Granted.
	TryClaim(ctx context.Context, consumer string, eventID uuid.UUID) (Claim, error)

	// MarkProcessed records the side effect's outcome, completing the claim.
	MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID, outcome json.RawMessage) error

	// Release abandons a granted claim after a failed attempt so the event
	// can be re-claimed on redelivery.
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}
