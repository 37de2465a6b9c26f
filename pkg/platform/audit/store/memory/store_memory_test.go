package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "esocial/pkg/domain"
	audit "esocial/pkg/platform/audit"
)

func TestInMemoryStore_OutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	eventID := id.NewEventID()

	require.NoError(t, store.Append(ctx, audit.Event{EventID: eventID, Action: audit.ActionEventCreated}))
	require.NoError(t, store.Append(ctx, audit.Event{EventID: eventID, Action: audit.ActionEventSubmitted}))

	events, err := store.ListByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionEventCreated, events[0].Action)

	pending, err := store.FetchPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.MarkPublished(ctx, []uuid.UUID{pending[0].ID}, time.Now()))

	pending, err = store.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "event_submitted", pending[0].EventType)
}
