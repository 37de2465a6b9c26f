package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/sentinel"
)

func TestInMemoryStore_AppendListMarkRead(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	eventID := id.NewEventID()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := models.Notification{ID: id.NewNotificationID(), EventID: eventID, Kind: models.KindInfo, Message: "submitted", CreatedAt: now}
	second := models.Notification{ID: id.NewNotificationID(), EventID: eventID, Kind: models.KindAlert, Message: "rejected", CreatedAt: now}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	list, err := store.ListByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "insertion order")
	assert.Equal(t, second.ID, list[1].ID)

	changed, err := store.MarkRead(ctx, eventID, second.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.MarkRead(ctx, eventID, second.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed, "second mark is a no-op")

	list, err = store.ListByEvent(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, list[1].Read)
	require.NotNil(t, list[1].ReadAt)
	assert.Equal(t, now.Add(time.Minute), *list[1].ReadAt)
	assert.False(t, list[0].Read)
}

func TestInMemoryStore_MarkReadUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	eventID := id.NewEventID()
	n := models.Notification{ID: id.NewNotificationID(), EventID: eventID, Kind: models.KindInfo}
	require.NoError(t, store.Append(ctx, n))

	_, err := store.MarkRead(ctx, eventID, id.NewNotificationID(), time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = store.MarkRead(ctx, id.NewEventID(), n.ID, time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "notification of another event")
}

func TestInMemoryStore_ListEmpty(t *testing.T) {
	list, err := NewInMemoryStore().ListByEvent(context.Background(), id.NewEventID())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
