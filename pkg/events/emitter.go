package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/fulfillment/pkg/database"
	"github.com/ghuser/fulfillment/pkg/eventstore"
)

// Metadata keys set on every bus message.
const (
	MetaEventID       = "event_id"
	MetaEventType     = "event_type"
	MetaAggregateID   = "aggregate_id"
	MetaCorrelationID = "correlation_id"
)

// Emitter appends an event to the store and publishes it to the bus as one
// operation. An event is only "emitted" once it is durably appended — a
// publish without the append must be impossible.
type Emitter interface {
	Emit(ctx context.Context, topic string, event eventstore.Event) error
}

// TxEmitter emits by running the store append and the bus publish inside a
// single database transaction; Watermill's SQL publisher writes the outgoing
// message to the same database, so both commit or neither does.
type TxEmitter struct {
	db    *database.Database
	store *eventstore.PostgresStore
	bus   *EventBus
}

// NewTxEmitter returns a TxEmitter over the shared pool, store and bus.
func NewTxEmitter(db *database.Database, store *eventstore.PostgresStore, bus *EventBus) *TxEmitter {
	return &TxEmitter{db: db, store: store, bus: bus}
}

// Emit appends and publishes atomically. Append sentinel errors
// (ErrDuplicateEvent, ErrVersionConflict) pass through unwrapped for the
// caller to classify.
func (e *TxEmitter) Emit(ctx context.Context, topic string, event eventstore.Event) error {
	return e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.AppendTx(ctx, tx, event); err != nil {
			return err
		}

		pub, err := e.bus.NewTxPublisher(tx)
		if err != nil {
			return fmt.Errorf("emitter: tx publisher: %w", err)
		}
		msg, err := Marshal(event)
		if err != nil {
			return err
		}
		if err := pub.Publish(topic, msg); err != nil {
			return fmt.Errorf("emitter: publish to %s: %w", topic, err)
		}
		return nil
	})
}

// Marshal encodes the envelope as a bus message. The message UUID is the
// eventId so consumers can dedup before decoding; the aggregate id rides in
// metadata as the partition key.
func Marshal(event eventstore.Event) (*message.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("emitter: marshal envelope: %w", err)
	}
	msg := message.NewMessage(event.EventID.String(), body)
	msg.Metadata.Set(MetaEventID, event.EventID.String())
	msg.Metadata.Set(MetaEventType, event.EventType)
	msg.Metadata.Set(MetaAggregateID, event.AggregateID)
	msg.Metadata.Set(MetaCorrelationID, event.CorrelationID.String())
	return msg, nil
}

// Unmarshal decodes a bus message back into the envelope.
func Unmarshal(msg *message.Message) (eventstore.Event, error) {
	var event eventstore.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return eventstore.Event{}, fmt.Errorf("emitter: unmarshal envelope: %w", err)
	}
	return event, nil
}
