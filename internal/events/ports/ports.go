// Package ports declares what the compliance lifecycle needs from the outside
// world: persistence, locking, auditing and the government gateway.
package ports

import (
	"context"
	"time"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/audit"
)

// EventStore persists compliance events. Save inserts when Version is 0 and
// otherwise updates only if the stored version still matches, returning
// sentinel.ErrConflict when it does not. Save bumps Version on success.
// FindByID returns sentinel.ErrNotFound for unknown IDs. Stores never return
// Notifications; the tracker owns those.
type EventStore interface {
	Save(ctx context.Context, event *models.ComplianceEvent) error
	FindByID(ctx context.Context, eventID id.EventID) (*models.ComplianceEvent, error)
	ListBy(ctx context.Context, filter models.ListFilter) ([]*models.ComplianceEvent, error)
}

// NotificationStore persists event notifications in insertion order.
// MarkRead returns sentinel.ErrNotFound when the notification does not belong
// to the event, and false when it was already read.
type NotificationStore interface {
	Append(ctx context.Context, n models.Notification) error
	ListByEvent(ctx context.Context, eventID id.EventID) ([]models.Notification, error)
	MarkRead(ctx context.Context, eventID id.EventID, notificationID id.NotificationID, at time.Time) (bool, error)
}

// Locker serializes work on one key across goroutines or instances.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// AuditPublisher records compliance audit events. Failures must abort the
// operation being audited.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TxRunner runs fn inside one storage transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTx runs fn directly, for stores without transactions.
type NopTx struct{}

func (NopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
