package models

import (
	"time"

	"github.com/google/uuid"

	ordermodels "github.com/ghuser/fulfillment/services/order/domain/models"
)

// Status is the payment record lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusFailed     Status = "FAILED"
)

// Payment is the record of one charge attempt chain against an order.
// Exactly one Payment exists per order; the idempotency key is derived from
// the order id and stays stable across retries.
type Payment struct {
	ID               string
	OrderID          string
	IdempotencyKey   string
	Amount           ordermodels.Money
	Status           Status
	GatewayReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPayment returns a PENDING payment for the order.
func NewPayment(orderID, idempotencyKey string, amount ordermodels.Money) *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:             "payment-" + uuid.NewString(),
		OrderID:        orderID,
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
