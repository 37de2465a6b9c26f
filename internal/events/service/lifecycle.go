package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"esocial/internal/events/models"
	"esocial/internal/events/ports"
	id "esocial/pkg/domain"
	dErrors "esocial/pkg/domain-errors"
	"esocial/pkg/platform/audit"
	"esocial/pkg/requestcontext"
)

// Create validates payload and stores a new PENDING event.
func (s *Service) Create(ctx context.Context, employerID id.EmployerID, eventType models.EventType, payload json.RawMessage) (_ *models.ComplianceEvent, err error) {
	ctx, done := s.observe(ctx, "create", attribute.String("event.type", string(eventType)))
	defer done(&err)

	if employerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "employer ID is required")
	}
	if caller := requestcontext.EmployerID(ctx); !caller.IsNil() && caller != employerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot create events for another employer")
	}
	normalized, err := s.validate(eventType, payload)
	if err != nil {
		return nil, err
	}

	e, err := models.NewComplianceEvent(id.NewEventID(), employerID, eventType, normalized, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, e, transition{
		action:  audit.ActionEventCreated,
		kind:    models.KindInfo,
		message: fmt.Sprintf("%s event created (%s)", e.Type.Code(), e.Type),
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// Update replaces the payload of a PENDING event.
func (s *Service) Update(ctx context.Context, eventID id.EventID, payload json.RawMessage) (_ *models.ComplianceEvent, err error) {
	ctx, done := s.observe(ctx, "update", attribute.String("event.id", eventID.String()))
	defer done(&err)

	var out *models.ComplianceEvent
	err = s.withEvent(ctx, eventID, func(ctx context.Context) error {
		e, err := s.load(ctx, eventID)
		if err != nil {
			return err
		}
		if err := e.CanUpdatePayload(); err != nil {
			return err
		}
		normalized, err := s.validate(e.Type, payload)
		if err != nil {
			return err
		}
		e.ApplyPayloadUpdate(normalized, requestcontext.Now(ctx))
		if err := s.commit(ctx, e, transition{action: audit.ActionEventUpdated, from: e.Status}); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Service) validate(eventType models.EventType, payload json.RawMessage) (json.RawMessage, error) {
	result, err := s.validator.Validate(eventType, payload)
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		return nil, result.Err()
	}
	return result.Payload, nil
}

// Submit sends a PENDING or ERROR event to the registry. A gateway failure is
// not an error for the caller: the event comes back in ERROR with one
// detail describing the failure, and can be submitted again.
func (s *Service) Submit(ctx context.Context, eventID id.EventID) (_ *models.ComplianceEvent, err error) {
	ctx, done := s.observe(ctx, "submit", attribute.String("event.id", eventID.String()))
	defer done(&err)

	var out *models.ComplianceEvent
	err = s.withEvent(ctx, eventID, func(ctx context.Context) error {
		e, err := s.load(ctx, eventID)
		if err != nil {
			return err
		}
		if err := e.CanSubmit(); err != nil {
			return err
		}

		var result ports.SubmitResult
		callErr := s.gatewayCall(ctx, "submit", e, func(ctx context.Context) error {
			var err error
			result, err = s.gateway.Submit(ctx, e.Type, e.Payload)
			if err == nil && result.Protocol == "" {
				return ports.NewGatewayError(ports.CategoryBadResponse, "registry returned no protocol", nil)
			}
			return err
		})

		// The upstream call already happened; record it even if the caller left.
		ctx = context.WithoutCancel(ctx)
		from := e.Status
		now := requestcontext.Now(ctx)
		if callErr != nil {
			category := ports.CategoryOf(callErr)
			s.metrics.IncSubmitFailure(string(category))
			s.logger.WarnContext(ctx, "submission failed",
				"event_id", e.ID,
				"category", category,
				"error", callErr,
			)
			e.ApplySubmissionFailure([]models.ErrorDetail{{
				Code:        "gateway_" + string(category),
				Description: gatewayMessage(callErr),
			}}, now)
			err = s.commit(ctx, e, transition{
				action:  audit.ActionEventSubmissionFailed,
				from:    from,
				kind:    models.KindAlert,
				message: fmt.Sprintf("submission failed (%s): %s; resubmission recommended", category, gatewayMessage(callErr)),
				reason:  string(category),
			})
		} else {
			e.ApplySubmission(result.Protocol, now)
			err = s.commit(ctx, e, transition{
				action:  audit.ActionEventSubmitted,
				from:    from,
				kind:    models.KindInfo,
				message: "submitted to the registry under protocol " + result.Protocol,
			})
		}
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// Consult asks the registry for the outcome of a SUBMITTED event. A pending
// outcome leaves the event untouched.
func (s *Service) Consult(ctx context.Context, eventID id.EventID) (_ *models.ComplianceEvent, err error) {
	ctx, done := s.observe(ctx, "consult", attribute.String("event.id", eventID.String()))
	defer done(&err)

	var out *models.ComplianceEvent
	err = s.withEvent(ctx, eventID, func(ctx context.Context) error {
		e, err := s.load(ctx, eventID)
		if err != nil {
			return err
		}
		if err := e.CanConsult(); err != nil {
			return err
		}

		var result ports.ConsultResult
		callErr := s.gatewayCall(ctx, "consult", e, func(ctx context.Context) error {
			var err error
			result, err = s.gateway.ConsultByProtocol(ctx, e.Protocol)
			if err != nil {
				return err
			}
			switch result.Outcome {
			case ports.OutcomePending, ports.OutcomeRejected:
			case ports.OutcomeAccepted:
				if result.ReceiptNumber == "" {
					return ports.NewGatewayError(ports.CategoryBadResponse, "registry accepted the event without a receipt number", nil)
				}
			default:
				return ports.NewGatewayError(ports.CategoryBadResponse, "unknown consult outcome: "+string(result.Outcome), nil)
			}
			return nil
		})
		if callErr != nil {
			return surfaceGatewayError(callErr, "consult")
		}

		ctx = context.WithoutCancel(ctx)
		from := e.Status
		now := requestcontext.Now(ctx)
		switch result.Outcome {
		case ports.OutcomePending:
			out = e
			return nil
		case ports.OutcomeAccepted:
			e.ApplyAcceptance(result.ReceiptNumber, now)
			err = s.commit(ctx, e, transition{
				action:  audit.ActionEventProcessed,
				from:    from,
				kind:    models.KindInfo,
				message: "processed by the registry with receipt " + result.ReceiptNumber,
			})
		default:
			e.ApplyRejection(result.Errors, now)
			err = s.commit(ctx, e, transition{
				action:  audit.ActionEventRejected,
				from:    from,
				kind:    models.KindAlert,
				message: rejectionMessage(e.ErrorDetails),
				reason:  e.ErrorDetails[0].Code,
			})
		}
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func rejectionMessage(details []models.ErrorDetail) string {
	first := details[0]
	msg := fmt.Sprintf("rejected by the registry: %s %s", first.Code, first.Description)
	if len(details) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(details)-1)
	}
	return msg + "; correct the payload and resubmission recommended"
}

// Cancel withdraws a PROCESSED event when the cancellation policy allows it.
// Denials never reach the registry.
func (s *Service) Cancel(ctx context.Context, eventID id.EventID, reason string) (_ *models.ComplianceEvent, err error) {
	ctx, done := s.observe(ctx, "cancel", attribute.String("event.id", eventID.String()))
	defer done(&err)

	reason = strings.TrimSpace(reason)
	var out *models.ComplianceEvent
	err = s.withEvent(ctx, eventID, func(ctx context.Context) error {
		e, err := s.load(ctx, eventID)
		if err != nil {
			return err
		}
		if err := e.CanCancel(); err != nil {
			return err
		}
		if reason == "" {
			return dErrors.NewValidation("cancellation reason is required", map[string]string{"reason": "is required"})
		}
		now := requestcontext.Now(ctx)
		if decision := s.policy.CanCancel(e, now); !decision.Allowed {
			return dErrors.New(dErrors.CodeCancellationDenied, decision.Reason)
		}

		if callErr := s.gatewayCall(ctx, "cancel", e, func(ctx context.Context) error {
			return s.gateway.Cancel(ctx, e.ReceiptNumber, reason)
		}); callErr != nil {
			return surfaceGatewayError(callErr, "cancellation")
		}

		ctx = context.WithoutCancel(ctx)
		from := e.Status
		e.ApplyCancellation(reason, now)
		if err := s.commit(ctx, e, transition{
			action:  audit.ActionEventCancelled,
			from:    from,
			kind:    models.KindInfo,
			message: "cancelled at the registry: " + reason,
			reason:  reason,
		}); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}
