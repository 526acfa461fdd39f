package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ghuser/fulfillment/pkg/config"
	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/logger"
	domain "github.com/ghuser/fulfillment/services/order/domain"
	orderevents "github.com/ghuser/fulfillment/services/order/domain/events"
	"github.com/ghuser/fulfillment/services/order/domain/models"
)

func nopLogger() logger.Logger {
	return logger.New(&config.Config{LogLevel: "error"})
}

func newService(t *testing.T) (*OrderService, *eventstore.MemoryStore, *events.MemoryEmitter) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	emitter := events.NewMemoryEmitter(store)
	return NewOrderService(store, emitter, nopLogger()), store, emitter
}

func validItems() []ItemInput {
	return []ItemInput{
		{ProductID: "product-1", UnitPrice: 1500, Currency: "USD", Quantity: 2},
		{ProductID: "product-2", UnitPrice: 500, Currency: "USD", Quantity: 1},
	}
}

// TestOrderService_Create verifies creation appends OrderCreated at version 1
// and publishes it to the orders topic.
func TestOrderService_Create(t *testing.T) {
	svc, store, emitter := newService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, "customer-1", validItems())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Total.Amount != 3500 {
		t.Errorf("expected total 3500, got %d", order.Total.Amount)
	}
	if order.Version != 1 {
		t.Errorf("expected version 1, got %d", order.Version)
	}

	stream, err := store.ReadStream(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stream) != 1 || stream[0].EventType != orderevents.TypeOrderCreated {
		t.Fatalf("expected one OrderCreated in the store, got %+v", stream)
	}

	published := emitter.Published(orderevents.TopicOrders)
	if len(published) != 1 || published[0].EventType != orderevents.TypeOrderCreated {
		t.Fatalf("expected one OrderCreated on the bus, got %+v", published)
	}
}

// TestOrderService_Create_RejectsBadInput verifies command validation fails
// before anything is appended.
func TestOrderService_Create_RejectsBadInput(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "customer-1", nil); !errors.Is(err, domain.ErrEmptyOrder) {
		t.Errorf("expected ErrEmptyOrder, got %v", err)
	}

	mixed := []ItemInput{
		{ProductID: "product-1", UnitPrice: 100, Currency: "USD", Quantity: 1},
		{ProductID: "product-2", UnitPrice: 100, Currency: "EUR", Quantity: 1},
	}
	if _, err := svc.Create(ctx, "customer-1", mixed); !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}

	if appended, _ := store.ReadByCorrelation(ctx, uuid.Nil); len(appended) != 0 {
		t.Errorf("expected nothing appended, got %d events", len(appended))
	}
}

// TestOrderService_Get verifies Get folds the stream into current state and
// returns the raw history alongside.
func TestOrderService_Get(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, "customer-1", validItems())
	if err != nil {
		t.Fatal(err)
	}

	got, history, err := svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusPaymentPending {
		t.Errorf("expected PAYMENT_PENDING after fold, got %s", got.Status)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 history event, got %d", len(history))
	}

	if _, _, err := svc.Get(ctx, "order-missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

// TestOrderService_Cancel verifies cancellation appends OrderCancelled and
// the folded state lands in CANCELLED.
func TestOrderService_Cancel(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, "customer-1", validItems())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(ctx, order.ID, "changed my mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, history, err := svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 events, got %d", len(history))
	}
}

// TestOrderService_Cancel_TerminalOrder verifies cancelling a terminal order
// fails with ErrInvalidTransition and appends nothing.
func TestOrderService_Cancel_TerminalOrder(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, "customer-1", validItems())
	if err != nil {
		t.Fatal(err)
	}
	confirmed, err := orderevents.NewOrderConfirmed(order, 2, "payment-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, confirmed); err != nil {
		t.Fatal(err)
	}

	if err := svc.Cancel(ctx, order.ID, "too late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	stream, _ := store.ReadStream(ctx, order.ID)
	if len(stream) != 2 {
		t.Errorf("expected stream unchanged at 2 events, got %d", len(stream))
	}
}

// TestOrderService_Trace verifies Trace returns the cross-aggregate set of
// events sharing one correlation id.
func TestOrderService_Trace(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, "customer-1", validItems())
	if err != nil {
		t.Fatal(err)
	}
	confirmed, err := orderevents.NewOrderConfirmed(order, 2, "payment-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, confirmed); err != nil {
		t.Fatal(err)
	}

	trace, err := svc.Trace(ctx, order.CorrelationID.String())
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(trace) != 2 {
		t.Errorf("expected 2 correlated events, got %d", len(trace))
	}

	if _, err := svc.Trace(ctx, "not-a-uuid"); err == nil {
		t.Error("expected error for malformed correlation id")
	}
}
