// Package processor consumes OrderCreated events and charges the payment
// gateway exactly once per order: the idempotency ledger deduplicates
// redeliveries, the circuit breaker protects the gateway, and transient
// failures retry asynchronously with backoff.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/ghuser/fulfillment/pkg/breaker"
	"github.com/ghuser/fulfillment/pkg/deadletter"
	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/idempotency"
	"github.com/ghuser/fulfillment/pkg/logger"
	"github.com/ghuser/fulfillment/pkg/retry"
	"github.com/ghuser/fulfillment/pkg/telemetry"
	orderevents "github.com/ghuser/fulfillment/services/order/domain/events"
	paymentdomain "github.com/ghuser/fulfillment/services/payment/domain"
	paymentevents "github.com/ghuser/fulfillment/services/payment/domain/events"
	"github.com/ghuser/fulfillment/services/payment/domain/models"
	"github.com/ghuser/fulfillment/services/payment/domain/repositories"
)

// ConsumerName keys this consumer's entries in the idempotency ledger.
// Entries under this name never expire.
const ConsumerName = "payment-processor"

// Outcome is the ledger-recorded result of processing one OrderCreated event.
type Outcome struct {
	PaymentID        string `json:"paymentId"`
	Status           string `json:"status"`
	GatewayReference string `json:"gatewayReference,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Processor wires the gateway call chain for one payment dependency.
type Processor struct {
	ledger      idempotency.Ledger
	payments    repositories.PaymentRepository
	gateway     paymentdomain.Gateway
	breaker     *breaker.Breaker[paymentdomain.GatewayReference]
	scheduler   *retry.Scheduler
	emitter     events.Emitter
	sink        deadletter.Sink
	callTimeout time.Duration
	log         logger.Logger
}

// New returns a Processor with all collaborators injected.
func New(
	ledger idempotency.Ledger,
	payments repositories.PaymentRepository,
	gateway paymentdomain.Gateway,
	brk *breaker.Breaker[paymentdomain.GatewayReference],
	scheduler *retry.Scheduler,
	emitter events.Emitter,
	sink deadletter.Sink,
	callTimeout time.Duration,
	log logger.Logger,
) *Processor {
	return &Processor{
		ledger:      ledger,
		payments:    payments,
		gateway:     gateway,
		breaker:     brk,
		scheduler:   scheduler,
		emitter:     emitter,
		sink:        sink,
		callTimeout: callTimeout,
		log:         log,
	}
}

// Handle processes one message from the orders topic. A nil return acks the
// message; only infrastructure errors (store/ledger unreachable) propagate
// so the bus redelivers.
func (p *Processor) Handle(ctx context.Context, msg *message.Message) error {
	event, err := events.Unmarshal(msg)
	if err != nil {
		return p.malformed(ctx, msg, err)
	}
	if err := eventstore.ValidateEnvelope(event); err != nil {
		return p.malformed(ctx, msg, err)
	}

	if event.EventType != orderevents.TypeOrderCreated {
		return nil
	}

	var order orderevents.OrderCreatedPayload
	if err := json.Unmarshal(event.Payload, &order); err != nil {
		return p.malformed(ctx, msg, fmt.Errorf("decode OrderCreated payload: %w", err))
	}

	claim, err := p.ledger.TryClaim(ctx, ConsumerName, event.EventID)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", event.EventID, err)
	}
	switch claim.State {
	case idempotency.Processed:
		p.log.DebugContext(ctx, "payment already processed, replaying outcome",
			"event_id", event.EventID, "order_id", order.OrderID)
		return nil
	case idempotency.InProgress:
		p.log.DebugContext(ctx, "payment in progress elsewhere, skipping",
			"event_id", event.EventID, "order_id", order.OrderID)
		return nil
	}

	payment := models.NewPayment(order.OrderID, paymentdomain.IdempotencyKey(order.OrderID), order.Total)
	if err := p.payments.Save(ctx, payment); err != nil {
		if relErr := p.ledger.Release(ctx, ConsumerName, event.EventID); relErr != nil {
			p.log.ErrorContext(ctx, "failed to release claim", "event_id", event.EventID, "error", relErr)
		}
		return fmt.Errorf("save payment for %s: %w", order.OrderID, err)
	}

	chargeErr := p.attemptCharge(ctx, payment, event)
	if chargeErr == nil {
		return nil
	}
	if paymentdomain.IsPermanent(chargeErr) {
		return p.failPayment(ctx, payment, event, chargeErr.Error())
	}

	// Transient: hand the charge chain to the scheduler and ack. The retry
	// fires later as an independent unit of work; the in_progress claim
	// keeps redeliveries from starting a second chain.
	p.scheduleRetries(context.WithoutCancel(ctx), payment, event)
	return nil
}

func (p *Processor) scheduleRetries(ctx context.Context, payment *models.Payment, event eventstore.Event) {
	p.scheduler.Go(ctx, retry.Job{
		Name:    ConsumerName,
		Key:     payment.OrderID,
		Payload: event.Payload,
		Attempt: func(ctx context.Context, attempt int) error {
			err := p.attemptCharge(ctx, payment, event)
			if err == nil {
				return nil
			}
			if paymentdomain.IsPermanent(err) {
				// Stop the chain: the rejection is terminal, not retryable.
				if failErr := p.failPayment(ctx, payment, event, err.Error()); failErr != nil {
					p.log.ErrorContext(ctx, "failed to record permanent payment failure",
						"order_id", payment.OrderID, "error", failErr)
				}
				return nil
			}
			return err
		},
		OnExhausted: func(ctx context.Context, lastErr error) {
			// Exhausted transient retries are treated as permanent.
			if err := p.failPayment(ctx, payment, event, "retries exhausted: "+lastErr.Error()); err != nil {
				p.log.ErrorContext(ctx, "failed to record payment failure after retries",
					"order_id", payment.OrderID, "error", err)
			}
		},
	})
}

// attemptCharge makes one gateway call through the breaker with a per-call
// timeout, then records success durably.
func (p *Processor) attemptCharge(ctx context.Context, payment *models.Payment, event eventstore.Event) error {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	ref, err := p.breaker.Execute(callCtx, func(ctx context.Context) (paymentdomain.GatewayReference, error) {
		return p.gateway.Charge(ctx, payment.OrderID, payment.Amount, payment.IdempotencyKey)
	})
	if err != nil {
		return err
	}

	payment.Status = models.StatusAuthorized
	payment.GatewayReference = string(ref)
	payment.UpdatedAt = time.Now().UTC()
	if err := p.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("update payment %s: %w", payment.ID, err)
	}

	processed, err := paymentevents.NewPaymentProcessed(paymentevents.PaymentProcessedPayload{
		PaymentID:        payment.ID,
		OrderID:          payment.OrderID,
		Amount:           payment.Amount,
		GatewayReference: string(ref),
	}, event.CorrelationID, event.EventID)
	if err != nil {
		return err
	}
	if err := p.emit(ctx, processed); err != nil {
		return err
	}

	telemetry.PaymentOutcomes.WithLabelValues("authorized").Inc()
	p.log.InfoContext(ctx, "payment authorized",
		"order_id", payment.OrderID,
		"payment_id", payment.ID,
		"gateway_reference", string(ref),
	)
	return p.recordOutcome(ctx, event.EventID, Outcome{
		PaymentID:        payment.ID,
		Status:           string(models.StatusAuthorized),
		GatewayReference: string(ref),
	})
}

// failPayment records a terminal failure: FAILED record, PaymentFailed event,
// processed ledger entry. No retry follows.
func (p *Processor) failPayment(ctx context.Context, payment *models.Payment, event eventstore.Event, reason string) error {
	payment.Status = models.StatusFailed
	payment.UpdatedAt = time.Now().UTC()
	if err := p.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("update payment %s: %w", payment.ID, err)
	}

	failed, err := paymentevents.NewPaymentFailed(paymentevents.PaymentFailedPayload{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Reason:    reason,
	}, event.CorrelationID, event.EventID)
	if err != nil {
		return err
	}
	if err := p.emit(ctx, failed); err != nil {
		return err
	}

	telemetry.PaymentOutcomes.WithLabelValues("failed").Inc()
	p.log.InfoContext(ctx, "payment failed",
		"order_id", payment.OrderID,
		"payment_id", payment.ID,
		"reason", reason,
	)
	return p.recordOutcome(ctx, event.EventID, Outcome{
		PaymentID: payment.ID,
		Status:    string(models.StatusFailed),
		Reason:    reason,
	})
}

func (p *Processor) emit(ctx context.Context, event eventstore.Event) error {
	err := p.emitter.Emit(ctx, paymentevents.TopicPayments, event)
	if errors.Is(err, eventstore.ErrDuplicateEvent) {
		// Already appended by a previous attempt that crashed before the
		// ledger write. Success-already-happened.
		return nil
	}
	return err
}

func (p *Processor) recordOutcome(ctx context.Context, eventID uuid.UUID, outcome Outcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := p.ledger.MarkProcessed(ctx, ConsumerName, eventID, raw); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// malformed dead-letters an undecodable message and acks it — schema-invalid
// input is never retried.
func (p *Processor) malformed(ctx context.Context, msg *message.Message, cause error) error {
	err := p.sink.Sink(ctx, deadletter.Entry{
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
