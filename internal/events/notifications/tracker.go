// Package notifications tracks the informational and alert notes attached to
// compliance events.
package notifications

import (
	"context"
	"errors"
	"strings"

	"esocial/internal/events/models"
	"esocial/internal/events/ports"
	id "esocial/pkg/domain"
	dErrors "esocial/pkg/domain-errors"
	"esocial/pkg/platform/sentinel"
	"esocial/pkg/requestcontext"
)

// Tracker appends, lists and acknowledges notifications. It never changes
// event status.
type Tracker struct {
	events ports.EventStore
	store  ports.NotificationStore
}

func New(events ports.EventStore, store ports.NotificationStore) *Tracker {
	return &Tracker{events: events, store: store}
}

// Append records a notification on an existing event.
func (t *Tracker) Append(ctx context.Context, eventID id.EventID, kind models.NotificationKind, message string) (models.Notification, error) {
	if !kind.IsValid() {
		return models.Notification{}, dErrors.New(dErrors.CodeBadRequest, "unknown notification kind: "+string(kind))
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return models.Notification{}, dErrors.New(dErrors.CodeBadRequest, "notification message is required")
	}
	if err := t.requireEvent(ctx, eventID); err != nil {
		return models.Notification{}, err
	}

	n := models.Notification{
		ID:        id.NewNotificationID(),
		EventID:   eventID,
		Kind:      kind,
		Message:   message,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := t.store.Append(ctx, n); err != nil {
		return models.Notification{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append notification")
	}
	return n, nil
}

// List returns the event's notifications in insertion order.
func (t *Tracker) List(ctx context.Context, eventID id.EventID) ([]models.Notification, error) {
	if err := t.requireEvent(ctx, eventID); err != nil {
		return nil, err
	}
	list, err := t.store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return list, nil
}

// MarkRead acknowledges a notification. Marking it again is a no-op.
func (t *Tracker) MarkRead(ctx context.Context, eventID id.EventID, notificationID id.NotificationID) error {
	if err := t.requireEvent(ctx, eventID); err != nil {
		return err
	}
	if _, err := t.store.MarkRead(ctx, eventID, notificationID, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "notification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notification read")
	}
	return nil
}

func (t *Tracker) requireEvent(ctx context.Context, eventID id.EventID) error {
	if _, err := t.events.FindByID(ctx, eventID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "event not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	return nil
}
