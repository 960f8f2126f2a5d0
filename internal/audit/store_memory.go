package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps audit events in memory. Used in tests and as the default
// sink when no external pipeline is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByActor returns all events recorded for an actor, in append order.
func (s *MemoryStore) ListByActor(_ context.Context, actorID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if e.ActorID == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every recorded event.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
