package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"esocial/internal/events/notifications"
	"esocial/internal/events/policy"
	"esocial/internal/events/ports"
	"esocial/internal/events/schema"
	"esocial/internal/events/service"
	eventstore "esocial/internal/events/store/event"
	notificationstore "esocial/internal/events/store/notification"
	"esocial/internal/gateway/simulator"
	jwttoken "esocial/internal/jwt_token"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/httputil"
	authmw "esocial/pkg/platform/middleware/auth"
	"esocial/pkg/testutil"
)

const terminationBody = `{"type":"termination","payload":{"cpf":"111.444.777-35","termination_date":"2024-07-01",
	"reason_code":"dismissal_without_cause","notice_indemnified":true}}`

type HandlerSuite struct {
	suite.Suite
	router   http.Handler
	svc      *service.Service
	gateway  *simulator.Gateway
	jwt      *jwttoken.JWTService
	employer id.EmployerID
	token    string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := eventstore.NewInMemoryStore()
	registry, err := schema.NewRegistry()
	s.Require().NoError(err)
	cancelPolicy, err := policy.Default()
	s.Require().NoError(err)
	s.gateway = simulator.New(simulator.WithPendingPolls(0))

	s.svc = service.New(
		events,
		notifications.New(events, notificationstore.NewInMemoryStore()),
		schema.NewValidator(registry),
		s.gateway,
		cancelPolicy,
		service.WithLogger(logger),
	)

	s.jwt = jwttoken.NewJWTService("test-key", "", "")
	r := chi.NewRouter()
	r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(s.jwt), logger))
	New(s.svc, logger).Register(r)
	s.router = r

	s.employer = id.EmployerID(uuid.New())
	s.token = s.tokenFor(s.employer)
}

func (s *HandlerSuite) tokenFor(employer id.EmployerID) string {
	token, err := s.jwt.GenerateAccessToken(employer, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := testutil.NewRequest(s.T(), method, path)
	if body != "" {
		req = testutil.NewJSONRequest(s.T(), method, path, body)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *HandlerSuite) createEvent(body string) EventResponse {
	rec := s.do(http.MethodPost, "/v1/events", body, s.token)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp EventResponse
	s.decode(rec, &resp)
	return resp
}

func (s *HandlerSuite) TestRequiresBearerToken() {
	rec := s.do(http.MethodGet, "/v1/events", "", "")
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/v1/events", "", "garbage")
	testutil.AssertStatus(s.T(), rec, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestLifecycleOverHTTP() {
	created := s.createEvent(terminationBody)
	s.Equal("PENDING", created.Status)
	s.Equal("S-2299", created.Code)
	s.Equal(s.employer.String(), created.EmployerID)
	base := "/v1/events/" + created.ID

	rec := s.do(http.MethodPut, base+"/payload", `{"payload":{"cpf":"11144477735","termination_date":"2024-08-01",
		"reason_code":"dismissal_without_cause","notice_indemnified":true}}`, s.token)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/submit", "", s.token)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var submitted EventResponse
	s.decode(rec, &submitted)
	s.Equal("SUBMITTED", submitted.Status)
	s.Equal("P-000001", submitted.Protocol)

	rec = s.do(http.MethodPost, base+"/submit", "", s.token)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, base+"/consult", "", s.token)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var processed EventResponse
	s.decode(rec, &processed)
	s.Equal("PROCESSED", processed.Status)
	s.NotEmpty(processed.ReceiptNumber)
	s.Empty(processed.ErrorDetails)

	rec = s.do(http.MethodPost, base+"/cancel", `{"reason":"duplicate"}`, s.token)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var cancelled EventResponse
	s.decode(rec, &cancelled)
	s.Equal("CANCELLED", cancelled.Status)

	rec = s.do(http.MethodGet, base, "", s.token)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got EventResponse
	s.decode(rec, &got)
	s.Len(got.Notifications, 4)

	rec = s.do(http.MethodGet, base+"/notifications", "", s.token)
	s.Require().Equal(http.StatusOK, rec.Code)
	var notes ListNotificationsResponse
	s.decode(rec, &notes)
	s.Require().Len(notes.Notifications, 4)

	rec = s.do(http.MethodPost, base+"/notifications/"+notes.Notifications[0].ID+"/read", "", s.token)
	s.Equal(http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodPost, base+"/notifications/"+uuid.NewString()+"/read", "", s.token)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestCreateValidation() {
	rec := s.do(http.MethodPost, "/v1/events", `{"type":"termination","payload":{"cpf":"123"}}`, s.token)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	var body httputil.ErrorResponse
	s.decode(rec, &body)
	s.Equal("validation_error", body.Error)
	s.Contains(body.Fields, "termination_date")

	rec = s.do(http.MethodPost, "/v1/events", `{"type":"payroll","payload":{}}`, s.token)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.decode(rec, &body)
	s.Equal("unknown_event_type", body.Error)

	rec = s.do(http.MethodPost, "/v1/events", `{"type":"termination"}`, s.token)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/v1/events", `{"type":`, s.token)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCancellationDenied() {
	created := s.createEvent(`{"type":"workplace_accident","payload":{"cpf":"11144477735","accident_date":"2024-04-10",
		"accident_type":"typical","location":"Kitchen","injury_description":"Cut on left hand","death":false,
		"days_off":3,"reported_at":"2024-04-11"}}`)
	base := "/v1/events/" + created.ID
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, base+"/submit", "", s.token).Code)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, base+"/consult", "", s.token).Code)

	rec := s.do(http.MethodPost, base+"/cancel", `{"reason":"mistake"}`, s.token)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "cancellation_denied")

	rec = s.do(http.MethodPost, base+"/cancel", `{"reason":"  "}`, s.token)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestGatewayFailureOnConsult() {
	created := s.createEvent(terminationBody)
	base := "/v1/events/" + created.ID
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, base+"/submit", "", s.token).Code)

	s.gateway.FailNext("consult", ports.CategoryUnavailable)
	rec := s.do(http.MethodPost, base+"/consult", "", s.token)
	s.Equal(http.StatusBadGateway, rec.Code)

	s.gateway.FailNext("consult", ports.CategoryTimeout)
	rec = s.do(http.MethodPost, base+"/consult", "", s.token)
	s.Equal(http.StatusGatewayTimeout, rec.Code)
}

func (s *HandlerSuite) TestSubmitFailureIsRecordedNotRaised() {
	created := s.createEvent(terminationBody)
	s.gateway.FailNext("submit", ports.CategoryUnavailable)

	rec := s.do(http.MethodPost, "/v1/events/"+created.ID+"/submit", "", s.token)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got EventResponse
	s.decode(rec, &got)
	s.Equal("ERROR", got.Status)
	s.Len(got.ErrorDetails, 1)
}

func (s *HandlerSuite) TestOtherEmployerIsForbidden() {
	created := s.createEvent(terminationBody)
	other := s.tokenFor(id.EmployerID(uuid.New()))

	rec := s.do(http.MethodGet, "/v1/events/"+created.ID, "", other)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/v1/events", "", other)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list ListEventsResponse
	s.decode(rec, &list)
	s.Empty(list.Events)
}

func (s *HandlerSuite) TestBadIdentifiers() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/events/not-a-uuid", "", s.token).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/events/"+uuid.NewString(), "", s.token).Code)
}

func (s *HandlerSuite) TestListFilters() {
	s.createEvent(terminationBody)
	s.createEvent(terminationBody)

	rec := s.do(http.MethodGet, "/v1/events?type=termination&status=pending&limit=1", "", s.token)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var list ListEventsResponse
	s.decode(rec, &list)
	s.Len(list.Events, 1)
	s.Equal(1, list.Limit)

	rec = s.do(http.MethodGet, "/v1/events?status=DONE&limit=-1", "", s.token)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	body := testutil.UnmarshalErrorResponse(s.T(), rec)
	s.Contains(body.Fields, "status")
	s.Contains(body.Fields, "limit")
}

func (s *HandlerSuite) TestEmployerFromRequestContext() {
	created := s.createEvent(terminationBody)

	bare := chi.NewRouter()
	New(s.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(bare)

	req := testutil.WithEmployerID(testutil.NewRequest(s.T(), http.MethodGet, "/v1/events/"+created.ID), s.employer)
	rec := testutil.DoRequest(bare, req)
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	got := testutil.UnmarshalResponse[EventResponse](s.T(), rec)
	s.Equal(created.ID, got.ID)
}
