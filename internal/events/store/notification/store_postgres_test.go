package notification

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/sentinel"
)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresStore_Append(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := models.Notification{
		ID: id.NewNotificationID(), EventID: id.NewEventID(),
		Kind: models.KindAlert, Message: "rejected; resubmission recommended", CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO event_notifications").
		WithArgs(n.ID.String(), n.EventID.String(), "ALERT", n.Message, false, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Append(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByEvent(t *testing.T) {
	store, mock := newMock(t)
	eventID := id.NewEventID()
	nID := id.NewNotificationID()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, event_id, kind, message, read, read_at, created_at FROM event_notifications").
		WithArgs(eventID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "kind", "message", "read", "read_at", "created_at"}).
			AddRow(nID.String(), eventID.String(), "INFO", "submitted", true, now, now))

	list, err := store.ListByEvent(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, nID, list[0].ID)
	assert.Equal(t, models.KindInfo, list[0].Kind)
	assert.True(t, list[0].Read)
	require.NotNil(t, list[0].ReadAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkRead(t *testing.T) {
	eventID := id.NewEventID()
	nID := id.NewNotificationID()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unread becomes read", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("UPDATE event_notifications SET read = TRUE").
			WithArgs(nID.String(), eventID.String(), at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		changed, err := store.MarkRead(context.Background(), eventID, nID, at)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already read is a no-op", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("UPDATE event_notifications").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WithArgs(nID.String(), eventID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		changed, err := store.MarkRead(context.Background(), eventID, nID, at)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("unknown notification", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("UPDATE event_notifications").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := store.MarkRead(context.Background(), eventID, nID, at)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
