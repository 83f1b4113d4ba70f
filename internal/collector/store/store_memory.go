// Package store persists ingested events. Both implementations are idempotent
// on event id: saving an event twice stores it once.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
)

// InMemoryStore keeps events in insertion order.
type InMemoryStore struct {
	mu     sync.RWMutex
	seen   map[id.EventID]struct{}
	events []models.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{seen: make(map[id.EventID]struct{})}
}

// Save stores events not seen before and returns them.
func (s *InMemoryStore) Save(_ context.Context, events []models.Event, _ time.Time) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []models.Event
	for _, e := range events {
		if _, dup := s.seen[e.ID]; dup {
			continue
		}
		s.seen[e.ID] = struct{}{}
		s.events = append(s.events, e)
		inserted = append(inserted, e)
	}
	return inserted, nil
}

// ListByExperiment returns events tagged with expID, optionally restricted to
// the given event names, ordered by occurrence.
func (s *InMemoryStore) ListByExperiment(_ context.Context, expID id.ExperimentID, names []string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Event
	for _, e := range s.events {
		if _, ok := e.ExperimentContext[expID]; !ok {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, e.EventName) {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b models.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

// Len returns the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
