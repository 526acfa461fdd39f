package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryClaim struct {
	status    string
	outcome   json.RawMessage
	claimedAt time.Time
}

// MemoryLedger is an in-process Ledger with the same claim semantics as the
// durable implementations. Used in tests.
type MemoryLedger struct {
	mu     sync.Mutex
	lease  time.Duration
	claims map[string]*memoryClaim
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		lease:  DefaultLease,
		claims: make(map[string]*memoryClaim),
	}
}

// TryClaim grants the claim if absent, or if a previous in_progress claim is
// older than the lease.
func (l *MemoryLedger) TryClaim(_ context.Context, consumer string, eventID uuid.UUID) (Claim, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := consumer + ":" + eventID.String()
	c, ok := l.claims[key]
	if !ok || (c.status == "in_progress" && time.Since(c.claimedAt) > l.lease) {
		l.claims[key] = &memoryClaim{status: "in_progress", claimedAt: time.Now()}
		return Claim{State: Granted}, nil
	}
	if c.status == "processed" {
		return Claim{State: Processed, Outcome: c.outcome}, nil
	}
	return Claim{State: InProgress}, nil
}

// MarkProcessed records the outcome.
func (l *MemoryLedger) MarkProcessed(_ context.Context, consumer string, eventID uuid.UUID, outcome json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.claims[consumer+":"+eventID.String()] = &memoryClaim{status: "processed", outcome: outcome}
	return nil
}

// Release drops an in_progress claim.
func (l *MemoryLedger) Release(_ context.Context, consumer string, eventID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := consumer + ":" + eventID.String()
	if c, ok := l.claims[key]; ok && c.status == "in_progress" {
		delete(l.claims, key)
	}
	return nil
}
