package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "esocial/pkg/domain"
)

// Action names a compliance-relevant step in an event's lifecycle.
type Action string

const (
	ActionEventCreated          Action = "event_created"
	ActionEventUpdated          Action = "event_updated"
	ActionEventSubmitted        Action = "event_submitted"
	ActionEventSubmissionFailed Action = "event_submission_failed"
	ActionEventProcessed        Action = "event_processed"
	ActionEventRejected         Action = "event_rejected"
	ActionEventCancelled        Action = "event_cancelled"
)

// AggregateType is the outbox aggregate for every compliance record.
const AggregateType = "compliance_event"

// Event is a compliance audit record. It is transport-agnostic so stores and
// relays can fan it out.
type Event struct {
	ID            uuid.UUID
	Timestamp     time.Time
	Action        Action
	EmployerID    id.EmployerID
	EventID       id.EventID
	EventType     string
	FromStatus    string
	ToStatus      string
	Protocol      string
	ReceiptNumber string
	Reason        string
	RequestID     string
}

// Store persists compliance records. Postgres-backed stores join the caller's
// transaction when one is carried in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is a pending record waiting to be relayed to the broker.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Outbox is read by the relay.
type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// payload is the JSON published to the broker.
type payload struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	Action        string `json:"action"`
	EmployerID    string `json:"employer_id,omitempty"`
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type,omitempty"`
	FromStatus    string `json:"from_status,omitempty"`
	ToStatus      string `json:"to_status,omitempty"`
	Protocol      string `json:"protocol,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

// NewOutboxEntry builds the outbox row for event. The aggregate is the
// compliance event so the broker key keeps per-event ordering.
func NewOutboxEntry(event Event) (OutboxEntry, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	p := payload{
		ID:            event.ID.String(),
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:        string(event.Action),
		EventID:       event.EventID.String(),
		EventType:     event.EventType,
		FromStatus:    event.FromStatus,
		ToStatus:      event.ToStatus,
		Protocol:      event.Protocol,
		ReceiptNumber: event.ReceiptNumber,
		Reason:        event.Reason,
		RequestID:     event.RequestID,
	}
	if !event.EmployerID.IsNil() {
		p.EmployerID = event.EmployerID.String()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("marshal audit payload: %w", err)
	}
	return OutboxEntry{
		ID:            event.ID,
		AggregateType: AggregateType,
		AggregateID:   event.EventID.String(),
		EventType:     string(event.Action),
		Payload:       b,
		CreatedAt:     event.Timestamp,
	}, nil
}
