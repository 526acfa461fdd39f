package events

import (
	"context"
	"sync"

	"github.com/ghuser/fulfillment/pkg/eventstore"
)

// MemoryEmitter emits against an in-memory store and records what was
// published per topic. Used in tests and local development.
type MemoryEmitter struct {
	store *eventstore.MemoryStore

	mu        sync.Mutex
	published map[string][]eventstore.Event
}

// NewMemoryEmitter returns a MemoryEmitter over the given store.
func NewMemoryEmitter(store *eventstore.MemoryStore) *MemoryEmitter {
	return &MemoryEmitter{
		store:     store,
		published: make(map[string][]eventstore.Event),
	}
}

// Emit appends to the store first; the event is only recorded as published
// when the append succeeds, mirroring TxEmitter's atomicity.
func (e *MemoryEmitter) Emit(ctx context.Context, topic string, event eventstore.Event) error {
	if err := e.store.Append(ctx, event); err != nil {
		return err
	}
	e.mu.Lock()
	e.published[topic] = append(e.published[topic], event)
	e.mu.Unlock()
	return nil
}

// Published returns the events emitted to topic, in order.
func (e *MemoryEmitter) Published(topic string) []eventstore.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]eventstore.Event, len(e.published[topic]))
	copy(out, e.published[topic])
	return out
}
