package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/logger"
	domain "github.com/ghuser/fulfillment/services/order/domain"
	orderevents "github.com/ghuser/fulfillment/services/order/domain/events"
	"github.com/ghuser/fulfillment/services/order/domain/models"
)

// maxConflictRetries bounds reload-and-recompute on concurrent cancellation.
const maxConflictRetries = 3

// ItemInput is one order line in a creation command.
type ItemInput struct {
	ProductID string
	UnitPrice int64
	Currency  string
	Quantity  int
}

// OrderService executes the order commands that start and compensate sagas.
// State reads fold the event stream; there is no mutable order row anywhere.
type OrderService struct {
	store   eventstore.Store
	emitter events.Emitter
	log     logger.Logger
}

// NewOrderService returns an OrderService wired with the store and emitter.
func NewOrderService(store eventstore.Store, emitter events.Emitter, log logger.Logger) *OrderService {
	return &OrderService{store: store, emitter: emitter, log: log}
}

// Create validates the command and appends OrderCreatedEvent at version 1.
// Once emitted, downstream processing proceeds independently.
func (s *OrderService) Create(ctx context.Context, customerID string, inputs []ItemInput) (*models.Order, error) {
	items := make([]models.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		price, err := models.NewMoney(in.UnitPrice, in.Currency)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", in.ProductID, err)
		}
		item, err := models.NewOrderItem(in.ProductID, price, in.Quantity)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", in.ProductID, err)
		}
		items = append(items, item)
	}

	order, err := models.NewOrder(customerID, items)
	if err != nil {
		return nil, err
	}

	created, err := orderevents.NewOrderCreated(order)
	if err != nil {
		return nil, err
	}
	if err := s.emitter.Emit(ctx, orderevents.TopicOrders, created); err != nil {
		return nil, fmt.Errorf("emit order created: %w", err)
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"total", order.Total.String(),
		"correlation_id", order.CorrelationID,
	)
	order.Version = 1
	return order, nil
}

// Cancel appends OrderCancelledEvent — the explicit compensation path. Valid
// from any non-terminal state; a terminal order fails with
// ErrInvalidTransition.
func (s *OrderService) Cancel(ctx context.Context, orderID, reason string) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		order, _, err := s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !models.CanTransition(order.Status, models.StatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, models.StatusCancelled)
		}

		cancelled, err := orderevents.NewOrderCancelled(order, order.Version+1, reason)
		if err != nil {
			return err
		}

		err = s.emitter.Emit(ctx, orderevents.TopicOrders, cancelled)
		switch {
		case err == nil:
			s.log.InfoContext(ctx, "order cancelled", "order_id", orderID, "reason", reason)
			return nil
		case errors.Is(err, eventstore.ErrDuplicateEvent):
			return nil
		case errors.Is(err, eventstore.ErrVersionConflict):
			continue
		default:
			return fmt.Errorf("emit order cancelled: %w", err)
		}
	}
	return fmt.Errorf("order %s: gave up cancelling after %d version conflicts", orderID, maxConflictRetries)
}

// Get folds the order's stream and returns the current state plus the raw
// event history.
func (s *OrderService) Get(ctx context.Context, orderID string) (*models.Order, []eventstore.Event, error) {
	stream, err := s.store.ReadStream(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("read stream %s: %w", orderID, err)
	}
	order, err := orderevents.Replay(stream)
	if err != nil {
		return nil, nil, err
	}
	return order, stream, nil
}

// Trace returns every event sharing the order's business transaction,
// across aggregates.
func (s *OrderService) Trace(ctx context.Context, correlationID string) ([]eventstore.Event, error) {
	id, err := parseUUID(correlationID)
	if err != nil {
		return nil, err
	}
	evs, err := s.store.ReadByCorrelation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read by correlation %s: %w", correlationID, err)
	}
	return evs, nil
}
