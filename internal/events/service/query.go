package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	dErrors "esocial/pkg/domain-errors"
	"esocial/pkg/requestcontext"
)

// Get returns one event with its notifications attached.
func (s *Service) Get(ctx context.Context, eventID id.EventID) (_ *models.ComplianceEvent, err error) {
	ctx, done := s.observe(ctx, "get", attribute.String("event.id", eventID.String()))
	defer done(&err)

	e, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	list, err := s.tracker.List(ctx, eventID)
	if err != nil {
		return nil, err
	}
	e.Notifications = list
	return e, nil
}

// List returns events matching filter, oldest first, without notifications.
// Callers bound to an employer only ever see that employer's events.
func (s *Service) List(ctx context.Context, filter models.ListFilter) (_ []*models.ComplianceEvent, err error) {
	ctx, done := s.observe(ctx, "list")
	defer done(&err)

	if caller := requestcontext.EmployerID(ctx); !caller.IsNil() {
		if !filter.EmployerID.IsNil() && filter.EmployerID != caller {
			return nil, dErrors.New(dErrors.CodeForbidden, "cannot list events of another employer")
		}
		filter.EmployerID = caller
	}
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && !filter.CreatedFrom.Before(*filter.CreatedTo) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "created_from must be before created_to")
	}

	events, err := s.events.ListBy(ctx, filter.WithDefaults())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}

// ListNotifications returns the notifications of one event in insertion order.
func (s *Service) ListNotifications(ctx context.Context, eventID id.EventID) (_ []models.Notification, err error) {
	ctx, done := s.observe(ctx, "list_notifications", attribute.String("event.id", eventID.String()))
	defer done(&err)

	if _, err := s.load(ctx, eventID); err != nil {
		return nil, err
	}
	return s.tracker.List(ctx, eventID)
}

// MarkNotificationRead marks one notification read. Repeating it is a no-op.
func (s *Service) MarkNotificationRead(ctx context.Context, eventID id.EventID, notificationID id.NotificationID) (err error) {
	ctx, done := s.observe(ctx, "mark_notification_read", attribute.String("event.id", eventID.String()))
	defer done(&err)

	if notificationID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "notification ID is required")
	}
	if _, err := s.load(ctx, eventID); err != nil {
		return err
	}
	return s.tracker.MarkRead(ctx, eventID, notificationID)
}
