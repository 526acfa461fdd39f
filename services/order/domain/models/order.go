package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/ghuser/fulfillment/services/order/domain"
)

// Status is the order lifecycle state.
//
// Normal flow: CREATED → PAYMENT_PENDING → CONFIRMED | PAYMENT_FAILED.
// CANCELLED is reachable from any non-terminal state via explicit
// cancellation. CREATED → PAYMENT_PENDING is automatic: payment starts on
// OrderCreated, no extra event is emitted for it.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusCancelled      Status = "CANCELLED"
)

// CanTransition reports whether moving from one status to another is valid.
// Transition logic lives here, outside the aggregate, so the whole state
// machine is visible in one place.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusPaymentPending || to == StatusCancelled
	case StatusPaymentPending:
		return to == StatusConfirmed || to == StatusPaymentFailed || to == StatusCancelled
	case StatusConfirmed, StatusPaymentFailed, StatusCancelled:
		return false
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusPaymentFailed || s == StatusCancelled
}

// Order is the aggregate reconstructed by folding its event stream in
// version order. It is never mutated directly; every state change is an
// appended event.
type Order struct {
	ID            string
	CustomerID    string
	Items         []OrderItem
	Total         Money
	Status        Status
	Version       int64
	CorrelationID uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrder validates the creation command and returns the initial aggregate
// state. The caller appends the corresponding OrderCreatedEvent.
func NewOrder(customerID string, items []OrderItem) (*Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer id must not be empty")
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	total := Money{Currency: items[0].UnitPrice.Currency}
	for _, item := range items {
		sum, err := total.Add(item.Subtotal())
		if err != nil {
			return nil, fmt.Errorf("order total: %w", err)
		}
		total = sum
	}

	now := time.Now().UTC()
	return &Order{
		ID:            "order-" + uuid.NewString(),
		CustomerID:    customerID,
		Items:         items,
		Total:         total,
		Status:        StatusCreated,
		CorrelationID: uuid.New(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Transition moves the order to the target status or fails with
// ErrInvalidTransition carrying both states.
func (o *Order) Transition(to Status, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}
