package events

import (
	"encoding/json"
	"fmt"

	"github.com/ghuser/fulfillment/pkg/eventstore"
	domain "github.com/ghuser/fulfillment/services/order/domain"
	"github.com/ghuser/fulfillment/services/order/domain/models"
)

// Replay folds an order's event stream into the current aggregate state.
// The stream must be in version order starting at 1 (ReadStream guarantees
// this); an empty stream means the order does not exist.
//
// The automatic CREATED → PAYMENT_PENDING step is applied while folding
// OrderCreated: payment starts on that event, no separate event marks it.
func Replay(stream []eventstore.Event) (*models.Order, error) {
	if len(stream) == 0 {
		return nil, domain.ErrOrderNotFound
	}

	var order *models.Order
	for _, e := range stream {
		next, err := apply(order, e)
		if err != nil {
			return nil, err
		}
		order = next
	}
	return order, nil
}

func apply(order *models.Order, e eventstore.Event) (*models.Order, error) {
	switch e.EventType {
	case TypeOrderCreated:
		if order != nil {
			return nil, fmt.Errorf("order %s: duplicate OrderCreated in stream", e.AggregateID)
		}
		var p OrderCreatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("order %s: decode OrderCreated: %w", e.AggregateID, err)
		}
		return &models.Order{
			ID:            p.OrderID,
			CustomerID:    p.CustomerID,
			Items:         p.Items,
			Total:         p.Total,
			Status:        models.StatusPaymentPending, // auto step from CREATED
			Version:       e.Version,
			CorrelationID: e.CorrelationID,
			CreatedAt:     e.OccurredAt,
			UpdatedAt:     e.OccurredAt,
		}, nil

	case TypeOrderConfirmed:
		return transition(order, e, models.StatusConfirmed)

	case TypeOrderPaymentFailed:
		return transition(order, e, models.StatusPaymentFailed)

	case TypeOrderCancelled:
		return transition(order, e, models.StatusCancelled)

	default:
		return nil, fmt.Errorf("order %s: unknown event type %q at version %d",
			e.AggregateID, e.EventType, e.Version)
	}
}

func transition(order *models.Order, e eventstore.Event, to models.Status) (*models.Order, error) {
	if order == nil {
		return nil, fmt.Errorf("order %s: stream does not start with OrderCreated", e.AggregateID)
	}
	if err := order.Transition(to, e.OccurredAt); err != nil {
		return nil, fmt.Errorf("replaying %s at version %d: %w", e.EventType, e.Version, err)
	}
	order.Version = e.Version
	return order, nil
}
