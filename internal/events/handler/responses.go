package handler

import (
	"encoding/json"
	"time"

	"esocial/internal/events/models"
)

// EventResponse is the wire shape of a compliance event.
type EventResponse struct {
	ID            string                 `json:"id"`
	EmployerID    string                 `json:"employer_id"`
	Type          string                 `json:"type"`
	Code          string                 `json:"code"`
	Status        string                 `json:"status"`
	Payload       json.RawMessage        `json:"payload"`
	Protocol      string                 `json:"protocol,omitempty"`
	ReceiptNumber string                 `json:"receipt_number,omitempty"`
	SubmittedAt   *time.Time             `json:"submitted_at,omitempty"`
	ProcessedAt   *time.Time             `json:"processed_at,omitempty"`
	CancelledAt   *time.Time             `json:"cancelled_at,omitempty"`
	CancelReason  string                 `json:"cancel_reason,omitempty"`
	Attempts      int                    `json:"attempts"`
	ErrorDetails  []models.ErrorDetail   `json:"error_details"`
	Notifications []NotificationResponse `json:"notifications,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

type NotificationResponse struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type ListNotificationsResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
}

func toEventResponse(e *models.ComplianceEvent) EventResponse {
	details := e.ErrorDetails
	if details == nil {
		details = []models.ErrorDetail{}
	}
	resp := EventResponse{
		ID:            e.ID.String(),
		EmployerID:    e.EmployerID.String(),
		Type:          string(e.Type),
		Code:          e.Type.Code(),
		Status:        string(e.Status),
		Payload:       e.Payload,
		Protocol:      e.Protocol,
		ReceiptNumber: e.ReceiptNumber,
		SubmittedAt:   e.SubmittedAt,
		ProcessedAt:   e.ProcessedAt,
		CancelledAt:   e.CancelledAt,
		CancelReason:  e.CancelReason,
		Attempts:      e.Attempts,
		ErrorDetails:  details,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if len(e.Notifications) > 0 {
		resp.Notifications = toNotificationResponses(e.Notifications)
	}
	return resp
}

func toNotificationResponses(list []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, len(list))
	for i, n := range list {
		out[i] = NotificationResponse{
			ID:        n.ID.String(),
			Kind:      string(n.Kind),
			Message:   n.Message,
			Read:      n.Read,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		}
	}
	return out
}
