package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "esocial/pkg/domain"
	audit "esocial/pkg/platform/audit"
	"esocial/pkg/platform/audit/store/memory"
	"esocial/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("outbox down") }

func TestPublisher_Emit(t *testing.T) {
	t.Run("persists and stamps request metadata", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store)
		defer pub.Close()

		fixed := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
		ctx := requestcontext.WithTime(context.Background(), fixed)
		ctx = requestcontext.WithRequestID(ctx, "req-42")
		eventID := id.NewEventID()

		require.NoError(t, pub.Emit(ctx, audit.Event{EventID: eventID, Action: audit.ActionEventProcessed}))

		events, err := store.ListByEvent(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, fixed, events[0].Timestamp)
		assert.Equal(t, "req-42", events[0].RequestID)
	})

	t.Run("rejects records without event or action", func(t *testing.T) {
		pub := New(memory.NewInMemoryStore())
		assert.Error(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionEventCreated}))
		assert.Error(t, pub.Emit(context.Background(), audit.Event{EventID: id.NewEventID()}))
	})

	t.Run("fails closed when the store fails", func(t *testing.T) {
		pub := New(failingStore{})
		err := pub.Emit(context.Background(), audit.Event{EventID: id.NewEventID(), Action: audit.ActionEventCreated})
		assert.ErrorContains(t, err, "compliance audit persistence failed")
	})
}
