// Package notification persists event notifications.
package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/sentinel"
)

// InMemoryStore keeps notifications per event in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	byEvent map[id.EventID][]models.Notification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEvent: make(map[id.EventID][]models.Notification)}
}

func (s *InMemoryStore) Append(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEvent[n.EventID] = append(s.byEvent[n.EventID], n)
	return nil
}

func (s *InMemoryStore) ListByEvent(_ context.Context, eventID id.EventID) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.byEvent[eventID])
	if out == nil {
		out = []models.Notification{}
	}
	return out, nil
}

func (s *InMemoryStore) MarkRead(_ context.Context, eventID id.EventID, notificationID id.NotificationID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byEvent[eventID]
	for i := range list {
		if list[i].ID == notificationID {
			return list[i].ApplyRead(at), nil
		}
	}
	return false, sentinel.ErrNotFound
}
