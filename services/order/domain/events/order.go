package events

import (
	"encoding/json"
	"fmt"

	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/services/order/domain/models"
)

// TopicOrders is the bus topic carrying all Order aggregate events,
// partitioned by aggregateId.
const TopicOrders = "orders"

// Event type tags for the Order aggregate.
const (
	TypeOrderCreated       = "OrderCreated"
	TypeOrderConfirmed     = "OrderConfirmed"
	TypeOrderPaymentFailed = "OrderPaymentFailed"
	TypeOrderCancelled     = "OrderCancelled"
)

// OrderCreatedPayload is the payload of an OrderCreated event. Consumed by
// the Payment Processor (to charge) and the Notification Dispatcher.
type OrderCreatedPayload struct {
	OrderID    string             `json:"orderId"`
	CustomerID string             `json:"customerId"`
	Items      []models.OrderItem `json:"items"`
	Total      models.Money       `json:"total"`
}

// OrderConfirmedPayload marks payment success from the order's perspective.
type OrderConfirmedPayload struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
}

// OrderPaymentFailedPayload marks terminal payment failure.
type OrderPaymentFailedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// OrderCancelledPayload records an explicit cancellation.
type OrderCancelledPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// NewOrderCreated builds the origin envelope for a fresh order at version 1.
func NewOrderCreated(o *models.Order) (eventstore.Event, error) {
	payload, err := json.Marshal(OrderCreatedPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Items:      o.Items,
		Total:      o.Total,
	})
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal order created: %w", err)
	}
	return eventstore.New(TypeOrderCreated, o.ID, eventstore.AggregateOrder, 1, o.CorrelationID, payload), nil
}

// NewOrderConfirmed builds the envelope appended when a PaymentProcessed
// event confirms the order. version must be the stream's lastVersion+1.
func NewOrderConfirmed(o *models.Order, version int64, paymentID string) (eventstore.Event, error) {
	payload, err := json.Marshal(OrderConfirmedPayload{OrderID: o.ID, PaymentID: paymentID})
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal order confirmed: %w", err)
	}
	return eventstore.New(TypeOrderConfirmed, o.ID, eventstore.AggregateOrder, version, o.CorrelationID, payload), nil
}

// NewOrderPaymentFailed builds the envelope appended when payment fails
// permanently.
func NewOrderPaymentFailed(o *models.Order, version int64, reason string) (eventstore.Event, error) {
	payload, err := json.Marshal(OrderPaymentFailedPayload{OrderID: o.ID, Reason: reason})
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal order payment failed: %w", err)
	}
	return eventstore.New(TypeOrderPaymentFailed, o.ID, eventstore.AggregateOrder, version, o.CorrelationID, payload), nil
}

// NewOrderCancelled builds the explicit compensation envelope.
func NewOrderCancelled(o *models.Order, version int64, reason string) (eventstore.Event, error) {
	payload, err := json.Marshal(OrderCancelledPayload{OrderID: o.ID, Reason: reason})
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal order cancelled: %w", err)
	}
	return eventstore.New(TypeOrderCancelled, o.ID, eventstore.AggregateOrder, version, o.CorrelationID, payload), nil
}
