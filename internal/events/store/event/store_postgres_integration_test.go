//go:build integration

package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"esocial/internal/events/models"
	notificationstore "esocial/internal/events/store/notification"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/sentinel"
	txcontext "esocial/pkg/platform/tx"
	"esocial/pkg/testutil/containers"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	pg            *containers.PostgresContainer
	store         *PostgresStore
	notifications *notificationstore.PostgresStore
	ctx           context.Context
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.notifications = notificationstore.NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresIntegrationSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "event_notifications", "compliance_events", "outbox"))
}

func (s *PostgresIntegrationSuite) newEvent() *models.ComplianceEvent {
	now := time.Now().UTC().Truncate(time.Microsecond)
	e, err := models.NewComplianceEvent(id.NewEventID(), id.EmployerID(id.NewEventID()),
		models.TypeTermination, json.RawMessage(`{"cpf":"11144477735","notice_indemnified":true}`), now)
	s.Require().NoError(err)
	return e
}

func (s *PostgresIntegrationSuite) TestRoundTripKeepsPayloadBytes() {
	e := s.newEvent()
	s.Require().NoError(s.store.Save(s.ctx, e))

	found, err := s.store.FindByID(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(string(e.Payload), string(found.Payload), "JSON column keeps the normalized bytes")
	s.Equal(e.CreatedAt, found.CreatedAt.UTC())
	s.Equal(1, found.Version)
}

func (s *PostgresIntegrationSuite) TestOptimisticConcurrency() {
	e := s.newEvent()
	s.Require().NoError(s.store.Save(s.ctx, e))
	stale := e.Clone()

	e.ApplySubmission("P-000001", time.Now().UTC())
	s.Require().NoError(s.store.Save(s.ctx, e))

	stale.ApplySubmissionFailure([]models.ErrorDetail{{Code: "gateway_timeout", Description: "x"}}, time.Now().UTC())
	s.ErrorIs(s.store.Save(s.ctx, stale), sentinel.ErrConflict)

	found, err := s.store.FindByID(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, found.Status)
	s.Equal(2, found.Version)
}

func (s *PostgresIntegrationSuite) TestRollbackDiscardsStateChange() {
	e := s.newEvent()
	s.Require().NoError(s.store.Save(s.ctx, e))

	runner := txcontext.NewRunner(s.pg.DB)
	err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
		e.ApplySubmission("P-000009", time.Now().UTC())
		if err := s.store.Save(ctx, e); err != nil {
			return err
		}
		return sentinel.ErrUnavailable
	})
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)

	found, err := s.store.FindByID(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
}

func (s *PostgresIntegrationSuite) TestListBySubmitted() {
	pending := s.newEvent()
	submitted := s.newEvent()
	s.Require().NoError(s.store.Save(s.ctx, pending))
	s.Require().NoError(s.store.Save(s.ctx, submitted))
	submitted.ApplySubmission("P-1", time.Now().UTC())
	s.Require().NoError(s.store.Save(s.ctx, submitted))

	events, err := s.store.ListBy(s.ctx, models.ListFilter{Statuses: []models.Status{models.StatusSubmitted}})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(submitted.ID, events[0].ID)
}

func (s *PostgresIntegrationSuite) TestNotificationsFollowEvent() {
	e := s.newEvent()
	s.Require().NoError(s.store.Save(s.ctx, e))

	now := time.Now().UTC()
	for _, msg := range []string{"first", "second", "third"} {
		s.Require().NoError(s.notifications.Append(s.ctx, models.Notification{
			ID: id.NewNotificationID(), EventID: e.ID, Kind: models.KindInfo, Message: msg, CreatedAt: now,
		}))
	}
	list, err := s.notifications.ListByEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal("first", list[0].Message)
	s.Equal("third", list[2].Message)

	changed, err := s.notifications.MarkRead(s.ctx, e.ID, list[1].ID, now)
	s.Require().NoError(err)
	s.True(changed)
	changed, err = s.notifications.MarkRead(s.ctx, e.ID, list[1].ID, now)
	s.Require().NoError(err)
	s.False(changed)
}
