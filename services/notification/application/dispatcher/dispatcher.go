// Package dispatcher consumes order lifecycle events and delivers customer
// notifications through a send channel. Envelopes are rendered on the bus
// handler goroutine, then queued onto a bounded work queue drained by a
// fixed pool of workers, so a slow provider backpressures the bus instead
// of stalling unboundedly in memory.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/ghuser/fulfillment/pkg/deadletter"
	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/idempotency"
	"github.com/ghuser/fulfillment/pkg/logger"
	"github.com/ghuser/fulfillment/pkg/retry"
	"github.com/ghuser/fulfillment/pkg/telemetry"
	notifdomain "github.com/ghuser/fulfillment/services/notification/domain"
	notifevents "github.com/ghuser/fulfillment/services/notification/domain/events"
	"github.com/ghuser/fulfillment/services/notification/domain/models"
	"github.com/ghuser/fulfillment/services/notification/domain/repositories"
	orderdomain "github.com/ghuser/fulfillment/services/order/domain"
)

// ConsumerName is the bus consumer group. Ledger claims are keyed per
// channel (ConsumerName + ":" + channel name) so adding a second channel
// later does not replay old claims.
const ConsumerName = "notification-dispatcher"

// Outcome is the ledger-recorded result of one delivery.
type Outcome struct {
	NotificationID    string `json:"notificationId"`
	Status            string `json:"status"`
	ProviderReference string `json:"providerReference,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Config sizes the dispatcher.
type Config struct {
	// QueueSize bounds the in-memory work queue.
	QueueSize int
	// Workers is the number of goroutines draining the queue.
	Workers int
	// SendTimeout is the per-send context deadline.
	SendTimeout time.Duration
}

// Dispatcher renders, queues and delivers notifications.
type Dispatcher struct {
	cfg           Config
	ledger        idempotency.Ledger
	notifications repositories.NotificationRepository
	store         eventstore.Store
	channel       notifdomain.Channel
	scheduler     *retry.Scheduler
	emitter       events.Emitter
	sink          deadletter.Sink
	log           logger.Logger

	queue chan *task
	wg    sync.WaitGroup
}

// New returns a Dispatcher; call Start before wiring Handle to the bus.
func New(
	cfg Config,
	ledger idempotency.Ledger,
	notifications repositories.NotificationRepository,
	store eventstore.Store,
	channel notifdomain.Channel,
	scheduler *retry.Scheduler,
	emitter events.Emitter,
	sink deadletter.Sink,
	log logger.Logger,
) *Dispatcher {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Dispatcher{
		cfg:           cfg,
		ledger:        ledger,
		notifications: notifications,
		store:         store,
		channel:       channel,
		scheduler:     scheduler,
		emitter:       emitter,
		sink:          sink,
		log:           log,
		queue:         make(chan *task, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers run until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for t := range d.queue {
				// Queue drain survives the consumer shutting down.
				d.process(context.WithoutCancel(ctx), t)
			}
		}()
	}
}

// Close stops accepting work and waits for the workers to drain the queue.
func (d *Dispatcher) Close() {
	close(d.queue)
	d.wg.Wait()
}

// Handle consumes one message from the orders topic. Rendering happens
// here; delivery happens on a worker. A full queue blocks until a worker
// frees a slot or the consumer shuts down, which nacks for redelivery.
func (d *Dispatcher) Handle(ctx context.Context, msg *message.Message) error {
	event, err := events.Unmarshal(msg)
	if err != nil {
		return d.malformed(ctx, msg, err)
	}
	if err := eventstore.ValidateEnvelope(event); err != nil {
		return d.malformed(ctx, msg, err)
	}

	t, err := d.render(ctx, event)
	if err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			// Event for an order this store never saw. Nothing to fold,
			// nobody to notify.
			d.log.WarnContext(ctx, "discarding event for unknown order",
				"event_id", event.EventID, "event_type", event.EventType)
			return nil
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return d.malformed(ctx, msg, err)
		}
		return fmt.Errorf("render %s %s: %w", event.EventType, event.EventID, err)
	}
	if t == nil {
		return nil
	}

	select {
	case d.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process delivers one rendered task: claim, record, send, finalize.
func (d *Dispatcher) process(ctx context.Context, t *task) {
	consumer := ConsumerName + ":" + d.channel.Name()

	claim, err := d.ledger.TryClaim(ctx, consumer, t.event.EventID)
	if err != nil {
		d.log.ErrorContext(ctx, "notification claim failed",
			"event_id", t.event.EventID, "order_id", t.orderID, "error", err)
		return
	}
	switch claim.State {
	case idempotency.Processed:
		d.log.DebugContext(ctx, "notification already sent, skipping",
			"event_id", t.event.EventID, "order_id", t.orderID)
		return
	case idempotency.InProgress:
		d.log.DebugContext(ctx, "notification in progress elsewhere, skipping",
			"event_id", t.event.EventID, "order_id", t.orderID)
		return
	}

	n := models.NewNotification(t.orderID, t.event.EventID, d.channel.Name(), t.recipient, t.content.Subject)
	if err := d.notifications.Save(ctx, n); err != nil {
		d.log.ErrorContext(ctx, "failed to save notification record",
			"event_id", t.event.EventID, "order_id", t.orderID, "error", err)
		if relErr := d.ledger.Release(ctx, consumer, t.event.EventID); relErr != nil {
			d.log.ErrorContext(ctx, "failed to release claim",
				"event_id", t.event.EventID, "error", relErr)
		}
		return
	}

	sendErr := d.attemptSend(ctx, n, t)
	if sendErr == nil {
		return
	}
	if notifdomain.IsPermanent(sendErr) {
		d.fail(ctx, n, t, sendErr.Error())
		return
	}

	// Transient: mark RETRYING and hand the chain to the scheduler. The
	// in_progress claim keeps redeliveries out while the chain runs.
	n.Status = models.StatusRetrying
	n.LastError = sendErr.Error()
	n.UpdatedAt = time.Now().UTC()
	if err := d.notifications.Update(ctx, n); err != nil {
		d.log.ErrorContext(ctx, "failed to mark notification retrying",
			"notification_id", n.ID, "error", err)
	}
	d.scheduleRetries(ctx, n, t)
}

func (d *Dispatcher) scheduleRetries(ctx context.Context, n *models.Notification, t *task) {
	d.scheduler.Go(ctx, retry.Job{
		Name:    ConsumerName,
		Key:     n.ID,
		Payload: t.event.Payload,
		Attempt: func(ctx context.Context, attempt int) error {
			err := d.attemptSend(ctx, n, t)
			if err == nil {
				return nil
			}
			if notifdomain.IsPermanent(err) {
				d.fail(ctx, n, t, err.Error())
				return nil
			}
			return err
		},
		OnExhausted: func(ctx context.Context, lastErr error) {
			d.fail(ctx, n, t, "retries exhausted: "+lastErr.Error())
		},
	})
}

// attemptSend makes one provider call with the send timeout, then records
// success durably: SENT record, NotificationSent event, processed claim.
func (d *Dispatcher) attemptSend(ctx context.Context, n *models.Notification, t *task) error {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	n.AttemptCount++
	ref, err := d.channel.Send(callCtx, t.recipient, notifdomain.Content{
		Subject: t.content.Subject,
		Body:    t.content.Body,
	})
	if err != nil {
		return err
	}

	n.Status = models.StatusSent
	n.ProviderReference = string(ref)
	n.LastError = ""
	n.UpdatedAt = time.Now().UTC()
	if err := d.notifications.Update(ctx, n); err != nil {
		return fmt.Errorf("update notification %s: %w", n.ID, err)
	}

	sent, err := notifevents.NewNotificationSent(notifevents.NotificationSentPayload{
		NotificationID:    n.ID,
		OrderID:           n.OrderID,
		Channel:           n.Channel,
		Recipient:         n.Recipient,
		ProviderReference: string(ref),
	}, t.event.CorrelationID, t.event.EventID)
	if err != nil {
		return err
	}
	if err := d.emit(ctx, sent); err != nil {
		return err
	}

	telemetry.NotificationsSent.WithLabelValues(n.Channel).Inc()
	d.log.InfoContext(ctx, "notification sent",
		"notification_id", n.ID,
		"order_id", n.OrderID,
		"channel", n.Channel,
		"provider_reference", string(ref),
	)
	return d.recordOutcome(ctx, t.event.EventID, Outcome{
		NotificationID:    n.ID,
		Status:            string(models.StatusSent),
		ProviderReference: string(ref),
	})
}

// fail records a terminal delivery failure. FAILED rows are the manual
// follow-up queue; nothing retries them automatically. Delivery failure
// never feeds back into order or payment state.
func (d *Dispatcher) fail(ctx context.Context, n *models.Notification, t *task, reason string) {
	n.Status = models.StatusFailed
	n.LastError = reason
	n.UpdatedAt = time.Now().UTC()
	if err := d.notifications.Update(ctx, n); err != nil {
		d.log.ErrorContext(ctx, "failed to mark notification failed",
			"notification_id", n.ID, "error", err)
	}
	d.log.WarnContext(ctx, "notification delivery failed",
		"notification_id", n.ID,
		"order_id", n.OrderID,
		"channel", n.Channel,
		"reason", reason,
	)
	if err := d.recordOutcome(ctx, t.event.EventID, Outcome{
		NotificationID: n.ID,
		Status:         string(models.StatusFailed),
		Reason:         reason,
	}); err != nil {
		d.log.ErrorContext(ctx, "failed to record notification outcome",
			"notification_id", n.ID, "error", err)
	}
}

func (d *Dispatcher) emit(ctx context.Context, event eventstore.Event) error {
	err := d.emitter.Emit(ctx, notifevents.TopicNotifications, event)
	if errors.Is(err, eventstore.ErrDuplicateEvent) {
		// Appended by a previous attempt that crashed before the ledger
		// write. Success-already-happened.
		return nil
	}
	return err
}

func (d *Dispatcher) recordOutcome(ctx context.Context, eventID uuid.UUID, outcome Outcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := d.ledger.MarkProcessed(ctx, ConsumerName+":"+d.channel.Name(), eventID, raw); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// malformed dead-letters an undecodable message and acks it.
func (d *Dispatcher) malformed(ctx context.Context, msg *message.Message, cause error) error {
	err := d.sink.Sink(ctx, deadletter.Entry{
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
