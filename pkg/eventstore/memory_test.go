package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func testEvent(aggregateID string, version int64, correlationID uuid.UUID) Event {
	return New("OrderCreated", aggregateID, AggregateOrder, version, correlationID, json.RawMessage(`{"orderId":"`+aggregateID+`"}`))
}

// TestMemoryStore_AppendAndReadStream verifies events come back in version
// order regardless of append order.
func TestMemoryStore_AppendAndReadStream(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	corr := uuid.New()

	for _, v := range []int64{2, 1, 3} {
		if err := store.Append(ctx, testEvent("order-1", v, corr)); err != nil {
			t.Fatalf("append version %d: %v", v, err)
		}
	}

	stream, err := store.ReadStream(ctx, "order-1")
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(stream) != 3 {
		t.Fatalf("expected 3 events, got %d", len(stream))
	}
	for i, e := range stream {
		if e.Version != int64(i+1) {
			t.Errorf("position %d: expected version %d, got %d", i, i+1, e.Version)
		}
	}
}

// TestMemoryStore_DuplicateEventID verifies re-appending the same envelope
// fails with ErrDuplicateEvent and leaves a single copy in the stream.
func TestMemoryStore_DuplicateEventID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	event := testEvent("order-1", 1, uuid.New())

	if err := store.Append(ctx, event); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := store.Append(ctx, event)
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}

	stream, _ := store.ReadStream(ctx, "order-1")
	if len(stream) != 1 {
		t.Errorf("expected 1 event after duplicate append, got %d", len(stream))
	}
}

// TestMemoryStore_VersionConflict verifies a second event claiming the same
// (aggregateId, version) slot fails with ErrVersionConflict.
func TestMemoryStore_VersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	corr := uuid.New()

	if err := store.Append(ctx, testEvent("order-1", 1, corr)); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := store.Append(ctx, testEvent("order-1", 1, corr))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

// TestMemoryStore_ConcurrentAppend_OneWinner verifies exactly one of N
// concurrent appends to the same version slot succeeds.
func TestMemoryStore_ConcurrentAppend_OneWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	corr := uuid.New()

	const writers = 16
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Append(ctx, testEvent("order-1", 2, corr))
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
	if conflicts != writers-1 {
		t.Errorf("expected %d conflicts, got %d", writers-1, conflicts)
	}
}

// TestMemoryStore_ReadByCorrelation verifies the cross-aggregate trace only
// returns events sharing the correlation id.
func TestMemoryStore_ReadByCorrelation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	corr := uuid.New()
	other := uuid.New()

	_ = store.Append(ctx, testEvent("order-1", 1, corr))
	_ = store.Append(ctx, New("PaymentProcessed", "payment-1", AggregatePayment, 1, corr, json.RawMessage(`{}`)))
	_ = store.Append(ctx, testEvent("order-2", 1, other))

	events, err := store.ReadByCorrelation(ctx, corr)
	if err != nil {
		t.Fatalf("read by correlation: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 correlated events, got %d", len(events))
	}
	for _, e := range events {
		if e.CorrelationID != corr {
			t.Errorf("event %s has correlation %s, want %s", e.EventID, e.CorrelationID, corr)
		}
	}
}

// TestMemoryStore_ReadStream_UnknownAggregate verifies an unknown aggregate
// yields an empty stream, not an error.
func TestMemoryStore_ReadStream_UnknownAggregate(t *testing.T) {
	store := NewMemoryStore()

	stream, err := store.ReadStream(context.Background(), "order-missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stream) != 0 {
		t.Errorf("expected empty stream, got %d events", len(stream))
	}
}

// TestCausedBy verifies the causal chain is carried without mutating the
// original envelope.
func TestCausedBy(t *testing.T) {
	event := testEvent("order-1", 1, uuid.New())
	cause := uuid.New()

	chained := event.CausedBy(cause)
	if chained.CausationID == nil || *chained.CausationID != cause {
		t.Fatal("expected causation id to be set")
	}
	if event.CausationID != nil {
		t.Error("original envelope must not be mutated")
	}
}

// TestValidateEnvelope verifies required wire fields are enforced.
func TestValidateEnvelope(t *testing.T) {
	valid := testEvent("order-1", 1, uuid.New())
	if err := ValidateEnvelope(valid); err != nil {
		t.Fatalf("expected valid envelope, got %v", err)
	}

	missingType := valid
	missingType.EventType = ""
	if err := ValidateEnvelope(missingType); err == nil {
		t.Error("expected error for missing event type")
	}

	missingPayload := valid
	missingPayload.Payload = nil
	if err := ValidateEnvelope(missingPayload); err == nil {
		t.Error("expected error for missing payload")
	}
}
