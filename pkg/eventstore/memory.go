package eventstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same append semantics as the
// Postgres implementation. Used in tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]struct{}
	bySlot map[string]map[int64]struct{} // aggregateID -> versions taken
	events []Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]struct{}),
		bySlot: make(map[string]map[int64]struct{}),
	}
}

// Append persists the event or fails with ErrDuplicateEvent/ErrVersionConflict.
func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[event.EventID]; ok {
		return ErrDuplicateEvent
	}
	slots := s.bySlot[event.AggregateID]
	if slots == nil {
		slots = make(map[int64]struct{})
		s.bySlot[event.AggregateID] = slots
	}
	if _, ok := slots[event.Version]; ok {
		return ErrVersionConflict
	}

	s.byID[event.EventID] = struct{}{}
	slots[event.Version] = struct{}{}
	s.events = append(s.events, event)
	return nil
}

// ReadStream returns the aggregate's events ordered by version.
func (s *MemoryStore) ReadStream(_ context.Context, aggregateID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ReadByCorrelation returns every event sharing the correlation id.
func (s *MemoryStore) ReadByCorrelation(_ context.Context, correlationID uuid.UUID) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}
