package saga

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/fulfillment/pkg/config"
	"github.com/ghuser/fulfillment/pkg/deadletter"
	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/logger"
	orderevents "github.com/ghuser/fulfillment/services/order/domain/events"
	"github.com/ghuser/fulfillment/services/order/domain/models"
	paymentevents "github.com/ghuser/fulfillment/services/payment/domain/events"
)

func nopLogger() logger.Logger {
	return logger.New(&config.Config{LogLevel: "error"})
}

type fixture struct {
	store   *eventstore.MemoryStore
	emitter *events.MemoryEmitter
	sink    *deadletter.MemorySink
	saga    *Saga
	order   *models.Order
	created eventstore.Event
}

// newFixture seeds the store with an order at version 1 (PAYMENT_PENDING).
func newFixture(t *testing.T) *fixture {
	t.Helper()

	price, err := models.NewMoney(1000, "USD")
	if err != nil {
		t.Fatal(err)
	}
	item, err := models.NewOrderItem("product-1", price, 1)
	if err != nil {
		t.Fatal(err)
	}
	order, err := models.NewOrder("customer-1", []models.OrderItem{item})
	if err != nil {
		t.Fatal(err)
	}
	created, err := orderevents.NewOrderCreated(order)
	if err != nil {
		t.Fatal(err)
	}

	store := eventstore.NewMemoryStore()
	if err := store.Append(context.Background(), created); err != nil {
		t.Fatal(err)
	}
	order.Version = 1

	emitter := events.NewMemoryEmitter(store)
	sink := deadletter.NewMemorySink()
	return &fixture{
		store:   store,
		emitter: emitter,
		sink:    sink,
		saga:    New(store, emitter, sink, nopLogger()),
		order:   order,
		created: created,
	}
}

func (f *fixture) paymentProcessedMsg(t *testing.T) *message.Message {
	t.Helper()
	event, err := paymentevents.NewPaymentProcessed(paymentevents.PaymentProcessedPayload{
		PaymentID:        "payment-1",
		OrderID:          f.order.ID,
		Amount:           f.order.Total,
		GatewayReference: "gw-1",
	}, f.order.CorrelationID, f.created.EventID)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := events.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func (f *fixture) paymentFailedMsg(t *testing.T, reason string) *message.Message {
	t.Helper()
	event, err := paymentevents.NewPaymentFailed(paymentevents.PaymentFailedPayload{
		PaymentID: "payment-1",
		OrderID:   f.order.ID,
		Amount:    f.order.Total,
		Reason:    reason,
	}, f.order.CorrelationID, f.created.EventID)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := events.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func (f *fixture) foldOrder(t *testing.T) *models.Order {
	t.Helper()
	stream, err := f.store.ReadStream(context.Background(), f.order.ID)
	if err != nil {
		t.Fatal(err)
	}
	order, err := orderevents.Replay(stream)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	return order
}

// TestSaga_PaymentProcessed_ConfirmsOrder verifies the success leg appends
// OrderConfirmed at the next version with the causal chain set.
func TestSaga_PaymentProcessed_ConfirmsOrder(t *testing.T) {
	f := newFixture(t)

	if err := f.saga.Handle(context.Background(), f.paymentProcessedMsg(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	order := f.foldOrder(t)
	if order.Status != models.StatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", order.Status)
	}
	if order.Version != 2 {
		t.Errorf("expected version 2, got %d", order.Version)
	}

	published := f.emitter.Published(orderevents.TopicOrders)
	if len(published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(published))
	}
	confirmed := published[0]
	if confirmed.EventType != orderevents.TypeOrderConfirmed {
		t.Errorf("expected OrderConfirmed, got %s", confirmed.EventType)
	}
	if confirmed.CausationID == nil {
		t.Error("expected causation id on the emitted event")
	}
	if confirmed.CorrelationID != f.order.CorrelationID {
		t.Error("expected the order's correlation id to carry through")
	}
}

// TestSaga_PaymentFailed_FailsOrder verifies the failure leg appends
// OrderPaymentFailed carrying the reason.
func TestSaga_PaymentFailed_FailsOrder(t *testing.T) {
	f := newFixture(t)

	if err := f.saga.Handle(context.Background(), f.paymentFailedMsg(t, "card declined")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	order := f.foldOrder(t)
	if order.Status != models.StatusPaymentFailed {
		t.Errorf("expected PAYMENT_FAILED, got %s", order.Status)
	}

	published := f.emitter.Published(orderevents.TopicOrders)
	if len(published) != 1 || published[0].EventType != orderevents.TypeOrderPaymentFailed {
		t.Fatalf("expected one OrderPaymentFailed, got %+v", published)
	}
}

// TestSaga_Redelivery_IsIdempotent verifies handling the same payment event
// twice appends only one order transition.
func TestSaga_Redelivery_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	msg := f.paymentProcessedMsg(t)

	if err := f.saga.Handle(context.Background(), msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.saga.Handle(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	stream, _ := f.store.ReadStream(context.Background(), f.order.ID)
	if len(stream) != 2 {
		t.Errorf("expected 2 events (created + confirmed), got %d", len(stream))
	}
}

// TestSaga_CancelledOrder_DiscardsPaymentOutcome verifies a payment outcome
// arriving after cancellation is discarded, not an error.
func TestSaga_CancelledOrder_DiscardsPaymentOutcome(t *testing.T) {
	f := newFixture(t)

	cancelled, err := orderevents.NewOrderCancelled(f.order, 2, "customer changed mind")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.Append(context.Background(), cancelled); err != nil {
		t.Fatal(err)
	}

	if err := f.saga.Handle(context.Background(), f.paymentProcessedMsg(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	order := f.foldOrder(t)
	if order.Status != models.StatusCancelled {
		t.Errorf("expected CANCELLED to stand, got %s", order.Status)
	}
	if published := f.emitter.Published(orderevents.TopicOrders); len(published) != 0 {
		t.Errorf("expected no emission for a terminal order, got %d", len(published))
	}
}

// TestSaga_UnknownOrder_Discards verifies a payment event for an order with
// no stream is discarded without dead-lettering.
func TestSaga_UnknownOrder_Discards(t *testing.T) {
	f := newFixture(t)
	foreign := newFixture(t) // a different store entirely

	if err := f.saga.Handle(context.Background(), foreign.paymentProcessedMsg(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if entries := f.sink.Entries(); len(entries) != 0 {
		t.Errorf("expected no dead letters, got %d", len(entries))
	}
}

// TestSaga_UnrelatedEventType_Ignored verifies non-payment events on the
// topic are acked without effect.
func TestSaga_UnrelatedEventType_Ignored(t *testing.T) {
	f := newFixture(t)

	msg, err := events.Marshal(f.created)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.saga.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if published := f.emitter.Published(orderevents.TopicOrders); len(published) != 0 {
		t.Errorf("expected no emission, got %d", len(published))
	}
}

// TestSaga_MalformedMessage_DeadLetters verifies undecodable payloads go to
// the dead-letter sink and the message is acked.
func TestSaga_MalformedMessage_DeadLetters(t *testing.T) {
	f := newFixture(t)

	msg := message.NewMessage("not-an-envelope", []byte(`{"eventId": 42}`))
	if err := f.saga.Handle(context.Background(), msg); err != nil {
		t.Fatalf("expected ack for malformed message, got %v", err)
	}

	entries := f.sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(entries))
	}
	if entries[0].Kind != "malformed" || entries[0].Source != ConsumerName {
		t.Errorf("unexpected dead letter: %+v", entries[0])
	}
}
