package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/sentinel"
	txcontext "esocial/pkg/platform/tx"
)

// PostgresStore persists notifications in event_notifications; seq keeps
// insertion order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, n models.Notification) error {
	query := `
		INSERT INTO event_notifications (id, event_id, kind, message, read, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var readAt sql.NullTime
	if n.ReadAt != nil {
		readAt = sql.NullTime{Time: *n.ReadAt, Valid: true}
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		n.ID.String(),
		n.EventID.String(),
		string(n.Kind),
		n.Message,
		n.Read,
		readAt,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEvent(ctx context.Context, eventID id.EventID) ([]models.Notification, error) {
	query := `
		SELECT id, event_id, kind, message, read, read_at, created_at
		FROM event_notifications
		WHERE event_id = $1
		ORDER BY seq
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n             models.Notification
			nID, nEventID uuid.UUID
			kind          string
			readAt        sql.NullTime
		)
		if err := rows.Scan(&nID, &nEventID, &kind, &n.Message, &n.Read, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ID = id.NotificationID(nID)
		n.EventID = id.EventID(nEventID)
		n.Kind = models.NotificationKind(kind)
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, eventID id.EventID, notificationID id.NotificationID, at time.Time) (bool, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE event_notifications SET read = TRUE, read_at = $3 WHERE id = $1 AND event_id = $2 AND NOT read`,
		notificationID.String(), eventID.String(), at,
	)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_notifications WHERE id = $1 AND event_id = $2)`,
		notificationID.String(), eventID.String(),
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	if !exists {
		return false, sentinel.ErrNotFound
	}
	return false, nil
}
