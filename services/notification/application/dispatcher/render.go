package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ghuser/fulfillment/pkg/eventstore"
	orderdomain "github.com/ghuser/fulfillment/services/order/domain"
	orderevents "github.com/ghuser/fulfillment/services/order/domain/events"
)

// task is one message rendered and queued for a worker.
type task struct {
	event     eventstore.Event
	orderID   string
	recipient string
	content   struct {
		Subject string
		Body    string
	}
}

// render maps a bus envelope to a customer-facing message. Returns nil for
// event types that carry no notification (payment-aggregate events are
// internal saga plumbing; the customer hears about them through the order
// lifecycle events the saga appends).
func (d *Dispatcher) render(ctx context.Context, event eventstore.Event) (*task, error) {
	switch event.EventType {
	case orderevents.TypeOrderCreated:
		var p orderevents.OrderCreatedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode OrderCreated payload: %w", err)
		}
		t := &task{event: event, orderID: p.OrderID, recipient: p.CustomerID}
		t.content.Subject = "Order received"
		t.content.Body = fmt.Sprintf("We received your order %s (%d items, %s). We'll confirm once payment goes through.",
			p.OrderID, len(p.Items), p.Total)
		return t, nil

	case orderevents.TypeOrderConfirmed:
		var p orderevents.OrderConfirmedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode OrderConfirmed payload: %w", err)
		}
		recipient, err := d.recipientFor(ctx, p.OrderID)
		if err != nil {
			return nil, err
		}
		t := &task{event: event, orderID: p.OrderID, recipient: recipient}
		t.content.Subject = "Order confirmed"
		t.content.Body = fmt.Sprintf("Payment for order %s succeeded. Your order is confirmed.", p.OrderID)
		return t, nil

	case orderevents.TypeOrderPaymentFailed:
		var p orderevents.OrderPaymentFailedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode OrderPaymentFailed payload: %w", err)
		}
		recipient, err := d.recipientFor(ctx, p.OrderID)
		if err != nil {
			return nil, err
		}
		t := &task{event: event, orderID: p.OrderID, recipient: recipient}
		t.content.Subject = "Payment failed"
		t.content.Body = fmt.Sprintf("We could not take payment for order %s: %s. Please update your payment method and order again.",
			p.OrderID, p.Reason)
		return t, nil

	case orderevents.TypeOrderCancelled:
		var p orderevents.OrderCancelledPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode OrderCancelled payload: %w", err)
		}
		recipient, err := d.recipientFor(ctx, p.OrderID)
		if err != nil {
			return nil, err
		}
		t := &task{event: event, orderID: p.OrderID, recipient: recipient}
		t.content.Subject = "Order cancelled"
		t.content.Body = fmt.Sprintf("Order %s has been cancelled.", p.OrderID)
		return t, nil
	}

	return nil, nil
}

// recipientFor folds the order stream to find the customer. Only the
// OrderCreated payload carries the customer id, so every later lifecycle
// event needs this lookup.
func (d *Dispatcher) recipientFor(ctx context.Context, orderID string) (string, error) {
	stream, err := d.store.ReadStream(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("read order stream %s: %w", orderID, err)
	}
	order, err := orderevents.Replay(stream)
	if err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			return "", fmt.Errorf("order %s has no stream: %w", orderID, err)
		}
		return "", fmt.Errorf("replay order %s: %w", orderID, err)
	}
	return order.CustomerID, nil
}
