package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	id "esocial/pkg/domain"
	audit "esocial/pkg/platform/audit"
)

type outboxRow struct {
	entry     audit.OutboxEntry
	published bool
}

// InMemoryStore keeps audit records and their outbox rows in process. It
// implements both audit.Store and audit.Outbox so the relay runs the same way
// without Postgres.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EventID][]audit.Event
	outbox []outboxRow
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EventID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.EventID][]audit.Event)
	s.outbox = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	entry, err := audit.NewOutboxEntry(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EventID] = append(s.events[event.EventID], event)
	s.outbox = append(s.outbox, outboxRow{entry: entry})
	return nil
}

// ListByEvent returns the records of one compliance event in append order.
func (s *InMemoryStore) ListByEvent(_ context.Context, eventID id.EventID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[eventID]), nil
}

func (s *InMemoryStore) FetchPending(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.OutboxEntry
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		out = append(out, row.entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if slices.Contains(ids, s.outbox[i].entry.ID) {
			s.outbox[i].published = true
		}
	}
	return nil
}
