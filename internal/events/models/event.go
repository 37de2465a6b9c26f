package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	id "esocial/pkg/domain"
	dErrors "esocial/pkg/domain-errors"
)

// ErrorDetail is one structured failure reported by the gateway or recorded
// for a failed submission.
type ErrorDetail struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ComplianceEvent is the aggregate root of the compliance lifecycle.
//
// Invariants:
//   - ID, EmployerID and Type are immutable after construction
//   - Payload changes only while PENDING, and only with a validated payload
//   - Protocol is non-empty only after a submission succeeded
//   - ReceiptNumber is non-empty only once PROCESSED has been reached
//   - ErrorDetails is non-empty iff Status is ERROR
//   - CANCELLED is terminal
//
// Mutations go through CanX/ApplyX pairs: the lifecycle service calls CanX
// under the event lock and ApplyX only once the transition is decided.
type ComplianceEvent struct {
	ID            id.EventID      `json:"id"`
	EmployerID    id.EmployerID   `json:"employer_id"`
	Type          EventType       `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Protocol      string          `json:"protocol,omitempty"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	Attempts      int             `json:"attempts"`
	ErrorDetails  []ErrorDetail   `json:"error_details"`
	Notifications []Notification  `json:"notifications"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

// NewComplianceEvent builds a PENDING event around an already validated payload.
func NewComplianceEvent(eventID id.EventID, employerID id.EmployerID, eventType EventType, payload json.RawMessage, now time.Time) (*ComplianceEvent, error) {
	if eventID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "event ID is required")
	}
	if employerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "employer ID is required")
	}
	if !eventType.IsValid() {
		return nil, dErrors.New(dErrors.CodeUnknownEventType, "unknown event type: "+string(eventType))
	}
	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payload is required")
	}
	return &ComplianceEvent{
		ID:         eventID,
		EmployerID: employerID,
		Type:       eventType,
		Payload:    slices.Clone(payload),
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func invalidTransition(op string, from Status) error {
	return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("cannot %s event in status %s", op, from))
}

// CanUpdatePayload allows payload replacement only while PENDING.
func (e *ComplianceEvent) CanUpdatePayload() error {
	if e.Status != StatusPending {
		return invalidTransition("update", e.Status)
	}
	return nil
}

// ApplyPayloadUpdate replaces the payload. Call CanUpdatePayload first.
func (e *ComplianceEvent) ApplyPayloadUpdate(payload json.RawMessage, now time.Time) {
	e.Payload = slices.Clone(payload)
	e.UpdatedAt = now
}

// CanSubmit allows submission from PENDING or ERROR.
func (e *ComplianceEvent) CanSubmit() error {
	if !e.Status.CanTransitionTo(StatusSubmitted) {
		return invalidTransition("submit", e.Status)
	}
	return nil
}

// ApplySubmission records an accepted submission: new protocol, fresh
// SubmittedAt, errors cleared.
func (e *ComplianceEvent) ApplySubmission(protocol string, now time.Time) {
	e.Status = StatusSubmitted
	e.Protocol = protocol
	e.SubmittedAt = &now
	e.ErrorDetails = nil
	e.Attempts++
	e.UpdatedAt = now
}

// ApplySubmissionFailure moves the event to ERROR with the failure details.
// The protocol of an earlier successful submission is kept.
func (e *ComplianceEvent) ApplySubmissionFailure(details []ErrorDetail, now time.Time) {
	e.Status = StatusError
	e.ErrorDetails = slices.Clone(details)
	e.Attempts++
	e.UpdatedAt = now
}

// CanConsult allows consultation only while SUBMITTED.
func (e *ComplianceEvent) CanConsult() error {
	if e.Status != StatusSubmitted {
		return invalidTransition("consult", e.Status)
	}
	return nil
}

// ApplyAcceptance records upstream acceptance.
func (e *ComplianceEvent) ApplyAcceptance(receiptNumber string, now time.Time) {
	e.Status = StatusProcessed
	e.ReceiptNumber = receiptNumber
	e.ProcessedAt = &now
	e.ErrorDetails = nil
	e.UpdatedAt = now
}

// ApplyRejection records upstream rejection. An empty error list from the
// gateway still yields one detail so ERROR always carries a reason.
func (e *ComplianceEvent) ApplyRejection(details []ErrorDetail, now time.Time) {
	if len(details) == 0 {
		details = []ErrorDetail{{Code: "rejected", Description: "rejected by the registry without details"}}
	}
	e.Status = StatusError
	e.ErrorDetails = slices.Clone(details)
	e.UpdatedAt = now
}

// CanCancel checks the state part of cancellation. Type eligibility and the
// time window are the cancellation policy's concern.
func (e *ComplianceEvent) CanCancel() error {
	if !e.Status.CanTransitionTo(StatusCancelled) {
		return invalidTransition("cancel", e.Status)
	}
	return nil
}

// ApplyCancellation marks the event CANCELLED.
func (e *ComplianceEvent) ApplyCancellation(reason string, now time.Time) {
	e.Status = StatusCancelled
	e.CancelReason = reason
	e.CancelledAt = &now
	e.UpdatedAt = now
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (e *ComplianceEvent) Clone() *ComplianceEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = slices.Clone(e.Payload)
	c.ErrorDetails = slices.Clone(e.ErrorDetails)
	c.Notifications = slices.Clone(e.Notifications)
	c.SubmittedAt = cloneTime(e.SubmittedAt)
	c.ProcessedAt = cloneTime(e.ProcessedAt)
	c.CancelledAt = cloneTime(e.CancelledAt)
	for i := range c.Notifications {
		c.Notifications[i].ReadAt = cloneTime(e.Notifications[i].ReadAt)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
