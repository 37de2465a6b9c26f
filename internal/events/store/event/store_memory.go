// Package event persists compliance events.
package event

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/sentinel"
)

// InMemoryStore keeps events in a map guarded by a RWMutex. Events are cloned
// on the way in and out so callers never share state with the store.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.ComplianceEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EventID]*models.ComplianceEvent)}
}

// Save inserts (Version 0) or updates with an optimistic version check.
func (s *InMemoryStore) Save(_ context.Context, event *models.ComplianceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	switch {
	case event.Version == 0 && ok:
		return sentinel.ErrConflict
	case event.Version > 0 && !ok:
		return sentinel.ErrNotFound
	case event.Version > 0 && existing.Version != event.Version:
		return sentinel.ErrConflict
	}

	stored := event.Clone()
	stored.Notifications = nil
	stored.Version++
	s.events[event.ID] = stored
	event.Version = stored.Version
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, eventID id.EventID) (*models.ComplianceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

// ListBy returns matching events oldest first.
func (s *InMemoryStore) ListBy(_ context.Context, filter models.ListFilter) ([]*models.ComplianceEvent, error) {
	filter = filter.WithDefaults()

	s.mu.RLock()
	matched := make([]*models.ComplianceEvent, 0)
	for _, e := range s.events {
		if filter.Matches(e) {
			matched = append(matched, e.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.ComplianceEvent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})

	if filter.Offset >= len(matched) {
		return []*models.ComplianceEvent{}, nil
	}
	end := min(filter.Offset+filter.Limit, len(matched))
	return matched[filter.Offset:end], nil
}
