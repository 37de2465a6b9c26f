package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"esocial/internal/events/models"
	"esocial/internal/events/ports/mocks"
	eventstore "esocial/internal/events/store/event"
	notificationstore "esocial/internal/events/store/notification"
	id "esocial/pkg/domain"
	dErrors "esocial/pkg/domain-errors"
	"esocial/pkg/requestcontext"
)

type TrackerSuite struct {
	suite.Suite
	events  *eventstore.InMemoryStore
	tracker *Tracker
	ctx     context.Context
	now     time.Time
	event   *models.ComplianceEvent
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.events = eventstore.NewInMemoryStore()
	s.tracker = New(s.events, notificationstore.NewInMemoryStore())
	s.now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	e, err := models.NewComplianceEvent(id.NewEventID(), id.EmployerID(id.NewEventID()),
		models.TypeTermination, json.RawMessage(`{}`), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.events.Save(s.ctx, e))
	s.event = e
}

func (s *TrackerSuite) TestAppendAndList() {
	first, err := s.tracker.Append(s.ctx, s.event.ID, models.KindInfo, "  submitted  ")
	s.Require().NoError(err)
	s.Equal("submitted", first.Message)
	s.Equal(s.now, first.CreatedAt)
	s.False(first.Read)

	_, err = s.tracker.Append(s.ctx, s.event.ID, models.KindAlert, "rejected")
	s.Require().NoError(err)

	list, err := s.tracker.List(s.ctx, s.event.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ID)
	s.Equal(models.KindAlert, list[1].Kind)

	stored, err := s.events.FindByID(s.ctx, s.event.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status, "notifications never change status")
}

func (s *TrackerSuite) TestAppendUnknownEvent() {
	_, err := s.tracker.Append(s.ctx, id.NewEventID(), models.KindInfo, "hello")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.tracker.List(s.ctx, id.NewEventID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TrackerSuite) TestAppendRejectsBadInput() {
	_, err := s.tracker.Append(s.ctx, s.event.ID, models.NotificationKind("WARN"), "x")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.tracker.Append(s.ctx, s.event.ID, models.KindInfo, "   ")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *TrackerSuite) TestMarkRead() {
	n, err := s.tracker.Append(s.ctx, s.event.ID, models.KindInfo, "submitted")
	s.Require().NoError(err)

	s.Require().NoError(s.tracker.MarkRead(s.ctx, s.event.ID, n.ID))
	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	s.Require().NoError(s.tracker.MarkRead(later, s.event.ID, n.ID), "second mark is a no-op")

	list, err := s.tracker.List(s.ctx, s.event.ID)
	s.Require().NoError(err)
	s.True(list[0].Read)
	s.Equal(s.now, *list[0].ReadAt)
}

func (s *TrackerSuite) TestMarkReadUnknownNotification() {
	err := s.tracker.MarkRead(s.ctx, s.event.ID, id.NewNotificationID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TrackerSuite) TestStoreFailureIsInternal() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockNotificationStore(ctrl)
	tracker := New(s.events, store)

	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	_, err := tracker.Append(s.ctx, s.event.ID, models.KindInfo, "submitted")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
