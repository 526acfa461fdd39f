// Package saga drives the order lifecycle forward from payment events. The
// saga never waits synchronously: it reacts to PaymentProcessed and
// PaymentFailed events from the bus, folds the order's stream, and appends
// the next order event under optimistic concurrency.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/fulfillment/pkg/deadletter"
	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/logger"
	domain "github.com/ghuser/fulfillment/services/order/domain"
	orderevents "github.com/ghuser/fulfillment/services/order/domain/events"
	"github.com/ghuser/fulfillment/services/order/domain/models"
	paymentevents "github.com/ghuser/fulfillment/services/payment/domain/events"
)

// ConsumerName identifies the saga's consumer group on the payments topic.
const ConsumerName = "order-saga"

// maxConflictRetries bounds the reload-and-recompute loop on version
// conflicts before the message is redelivered.
const maxConflictRetries = 3

// Saga consumes payment outcome events and transitions orders.
type Saga struct {
	store   eventstore.Store
	emitter events.Emitter
	sink    deadletter.Sink
	log     logger.Logger
}

// New returns a Saga with its collaborators injected.
func New(store eventstore.Store, emitter events.Emitter, sink deadletter.Sink, log logger.Logger) *Saga {
	return &Saga{store: store, emitter: emitter, sink: sink, log: log}
}

// Handle processes one message from the payments topic. Foreign or misrouted
// events are logged and discarded, never retried.
func (s *Saga) Handle(ctx context.Context, msg *message.Message) error {
	event, err := events.Unmarshal(msg)
	if err != nil {
		return s.malformed(ctx, msg, err)
	}
	if err := eventstore.ValidateEnvelope(event); err != nil {
		return s.malformed(ctx, msg, err)
	}

	var orderID string
	var target models.Status
	switch event.EventType {
	case paymentevents.TypePaymentProcessed:
		var p paymentevents.PaymentProcessedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return s.malformed(ctx, msg, fmt.Errorf("decode PaymentProcessed payload: %w", err))
		}
		orderID, target = p.OrderID, models.StatusConfirmed
	case paymentevents.TypePaymentFailed:
		var p paymentevents.PaymentFailedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return s.malformed(ctx, msg, fmt.Errorf("decode PaymentFailed payload: %w", err))
		}
		orderID, target = p.OrderID, models.StatusPaymentFailed
	default:
		return nil
	}

	return s.transition(ctx, orderID, target, event)
}

// transition folds the order stream and appends the next event. A version
// conflict means a concurrent append won the slot: reload and recompute.
func (s *Saga) transition(ctx context.Context, orderID string, target models.Status, cause eventstore.Event) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		stream, err := s.store.ReadStream(ctx, orderID)
		if err != nil {
			return fmt.Errorf("read stream %s: %w", orderID, err)
		}

		order, err := orderevents.Replay(stream)
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Misrouted or foreign event: not an error worth retrying.
			s.log.WarnContext(ctx, "saga: event references unknown order, discarding",
				"order_id", orderID,
				"event_id", cause.EventID,
				"event_type", cause.EventType,
			)
			return nil
		}
		if err != nil {
			return s.corruptStream(ctx, orderID, cause, err)
		}

		if order.Status == target {
			// Redelivery after the transition already happened.
			return nil
		}
		if !models.CanTransition(order.Status, target) {
			s.log.WarnContext(ctx, "saga: transition not allowed from current status, discarding",
				"order_id", orderID,
				"status", string(order.Status),
				"target", string(target),
				"event_id", cause.EventID,
			)
			return nil
		}

		next, err := s.nextEvent(order, target, cause)
		if err != nil {
			return err
		}

		err = s.emitter.Emit(ctx, orderevents.TopicOrders, next)
		switch {
		case err == nil:
			s.log.InfoContext(ctx, "saga: order transitioned",
				"order_id", orderID,
				"status", string(target),
				"version", next.Version,
				"caused_by", cause.EventID,
			)
			return nil
		case errors.Is(err, eventstore.ErrDuplicateEvent):
			return nil
		case errors.Is(err, eventstore.ErrVersionConflict):
			s.log.DebugContext(ctx, "saga: version conflict, reloading",
				"order_id", orderID, "attempt", attempt+1)
			continue
		default:
			return fmt.Errorf("emit %s for %s: %w", next.EventType, orderID, err)
		}
	}
	return fmt.Errorf("order %s: gave up after %d version conflicts", orderID, maxConflictRetries)
}

func (s *Saga) nextEvent(order *models.Order, target models.Status, cause eventstore.Event) (eventstore.Event, error) {
	version := order.Version + 1
	switch target {
	case models.StatusConfirmed:
		var p paymentevents.PaymentProcessedPayload
		_ = json.Unmarshal(cause.Payload, &p)
		next, err := orderevents.NewOrderConfirmed(order, version, p.PaymentID)
		if err != nil {
			return eventstore.Event{}, err
		}
		return next.CausedBy(cause.EventID), nil
	case models.StatusPaymentFailed:
		var p paymentevents.PaymentFailedPayload
		_ = json.Unmarshal(cause.Payload, &p)
		next, err := orderevents.NewOrderPaymentFailed(order, version, p.Reason)
		if err != nil {
			return eventstore.Event{}, err
		}
		return next.CausedBy(cause.EventID), nil
	default:
		return eventstore.Event{}, fmt.Errorf("order %s: no event for target status %s", order.ID, target)
	}
}

// corruptStream dead-letters an event whose stream cannot be folded. This is
// operator territory, not a retryable condition.
func (s *Saga) corruptStream(ctx context.Context, orderID string, cause eventstore.Event, foldErr error) error {
	raw, _ := json.Marshal(cause)
	err := s.sink.Sink(ctx, deadletter.Entry{
		Source:     ConsumerName,
		Kind:       "malformed",
		Key:        orderID,
		Payload:    raw,
		Reason:     foldErr.Error(),
		Attempts:   1,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("dead-letter fold failure for %s: %w", orderID, err)
	}
	return nil
}

// malformed dead-letters an undecodable message and acks it.
func (s *Saga) malformed(ctx context.Context, msg *message.Message, cause error) error {
	err := s.sink.Sink(ctx, deadletter.Entry{
		Source:     ConsumerName,
		Kind:       "malformed",
		Key:        msg.UUID,
		Payload:    json.RawMessage(msg.Payload),
		Reason:     cause.Error(),
		Attempts:   1,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("dead-letter malformed message %s: %w", msg.UUID, err)
	}
	return nil
}
