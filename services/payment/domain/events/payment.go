package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ghuser/fulfillment/pkg/eventstore"
	ordermodels "github.com/ghuser/fulfillment/services/order/domain/models"
)

// TopicPayments is the bus topic carrying all Payment aggregate events.
const TopicPayments = "payments"

// Event type tags for the Payment aggregate.
const (
	TypePaymentProcessed = "PaymentProcessed"
	TypePaymentFailed    = "PaymentFailed"
)

// PaymentProcessedPayload reports a successful charge. The Order Saga
// transitions the order to CONFIRMED on this event.
type PaymentProcessedPayload struct {
	PaymentID        string            `json:"paymentId"`
	OrderID          string            `json:"orderId"`
	Amount           ordermodels.Money `json:"amount"`
	GatewayReference string            `json:"gatewayReference"`
}

// PaymentFailedPayload reports a terminal payment failure (declined card or
// exhausted retries). The Order Saga transitions to PAYMENT_FAILED.
type PaymentFailedPayload struct {
	PaymentID string            `json:"paymentId"`
	OrderID   string            `json:"orderId"`
	Amount    ordermodels.Money `json:"amount"`
	Reason    string            `json:"reason"`
}

// NewPaymentProcessed builds the envelope for a successful charge, caused by
// the OrderCreated event that triggered it.
func NewPaymentProcessed(p PaymentProcessedPayload, correlationID, causedBy uuid.UUID) (eventstore.Event, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal payment processed: %w", err)
	}
	e := eventstore.New(TypePaymentProcessed, p.PaymentID, eventstore.AggregatePayment, 1, correlationID, payload)
	return e.CausedBy(causedBy), nil
}

// NewPaymentFailed builds the envelope for a terminal failure.
func NewPaymentFailed(p PaymentFailedPayload, correlationID, causedBy uuid.UUID) (eventstore.Event, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal payment failed: %w", err)
	}
	e := eventstore.New(TypePaymentFailed, p.PaymentID, eventstore.AggregatePayment, 1, correlationID, payload)
	return e.CausedBy(causedBy), nil
}
