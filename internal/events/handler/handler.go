// Package handler exposes the compliance event lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	dErrors "esocial/pkg/domain-errors"
	"esocial/pkg/platform/httputil"
	"esocial/pkg/requestcontext"
)

// Service is the lifecycle surface the handlers call.
type Service interface {
	Create(ctx context.Context, employerID id.EmployerID, eventType models.EventType, payload json.RawMessage) (*models.ComplianceEvent, error)
	Update(ctx context.Context, eventID id.EventID, payload json.RawMessage) (*models.ComplianceEvent, error)
	Submit(ctx context.Context, eventID id.EventID) (*models.ComplianceEvent, error)
	Consult(ctx context.Context, eventID id.EventID) (*models.ComplianceEvent, error)
	Cancel(ctx context.Context, eventID id.EventID, reason string) (*models.ComplianceEvent, error)
	Get(ctx context.Context, eventID id.EventID) (*models.ComplianceEvent, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.ComplianceEvent, error)
	ListNotifications(ctx context.Context, eventID id.EventID) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, eventID id.EventID, notificationID id.NotificationID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the event routes. Callers mount it behind the auth
// middleware so every request carries an employer.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/events", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/payload", h.HandleUpdate)
			r.Post("/submit", h.HandleSubmit)
			r.Post("/consult", h.HandleConsult)
			r.Post("/cancel", h.HandleCancel)
			r.Get("/notifications", h.HandleListNotifications)
			r.Post("/notifications/{nid}/read", h.HandleMarkNotificationRead)
		})
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	employerID := requestcontext.EmployerID(ctx)
	if employerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	e, err := h.service.Create(ctx, employerID, req.ParsedType(), req.Payload)
	if err != nil {
		h.fail(ctx, w, "create event failed", err)
		return
	}
	w.Header().Set("Location", "/v1/events/"+e.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, toEventResponse(e))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list events failed", err)
		return
	}

	filter = filter.WithDefaults()
	resp := ListEventsResponse{Events: make([]EventResponse, len(events)), Limit: filter.Limit, Offset: filter.Offset}
	for i, e := range events {
		resp.Events[i] = toEventResponse(e)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "get event failed", h.service.Get)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "submit event failed", h.service.Submit)
}

func (h *Handler) HandleConsult(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "consult event failed", h.service.Consult)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdatePayloadRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.Update(ctx, eventID, req.Payload)
	if err != nil {
		h.fail(ctx, w, "update event failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CancelRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.Cancel(ctx, eventID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "cancel event failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListNotifications(ctx, eventID)
	if err != nil {
		h.fail(ctx, w, "list notifications failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListNotificationsResponse{Notifications: toNotificationResponses(list)})
}

func (h *Handler) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	notificationID, err := id.ParseNotificationID(chi.URLParam(r, "nid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.MarkNotificationRead(ctx, eventID, notificationID); err != nil {
		h.fail(ctx, w, "mark notification read failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withEvent handles the routes whose only input is the event ID.
func (h *Handler) withEvent(w http.ResponseWriter, r *http.Request, failure string, op func(context.Context, id.EventID) (*models.ComplianceEvent, error)) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := op(ctx, eventID)
	if err != nil {
		h.fail(ctx, w, failure, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(e))
}

// fail logs at a level matching the error's origin and writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"employer_id", requestcontext.EmployerID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
