package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"esocial/internal/events/models"
)

// Gateway is the government registry as the lifecycle sees it. Implementations
// return *GatewayError for every failure.
type Gateway interface {
	Submit(ctx context.Context, eventType models.EventType, payload json.RawMessage) (SubmitResult, error)
	ConsultByProtocol(ctx context.Context, protocol string) (ConsultResult, error)
	Cancel(ctx context.Context, receiptNumber, reason string) error
}

type SubmitResult struct {
	Protocol string
}

// Outcome is the registry's verdict on a submitted event.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// ConsultResult carries ReceiptNumber when accepted and Errors when rejected.
type ConsultResult struct {
	Outcome       Outcome
	ReceiptNumber string
	Errors        []models.ErrorDetail
}

// ErrorCategory classifies gateway failures.
type ErrorCategory string

const (
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryUnavailable ErrorCategory = "unavailable"
	CategoryRejected    ErrorCategory = "rejected"
	CategoryBadResponse ErrorCategory = "bad_response"
	CategoryRateLimited ErrorCategory = "rate_limited"
	CategoryInternal    ErrorCategory = "internal"
)

// Retryable reports whether a later attempt may succeed unchanged.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryTimeout, CategoryUnavailable, CategoryRateLimited:
		return true
	default:
		return false
	}
}

// GatewayError is the normalized failure of any gateway call.
type GatewayError struct {
	Category  ErrorCategory
	Retryable bool
	Message   string
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Category, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayError builds a GatewayError whose retryability follows category.
func NewGatewayError(category ErrorCategory, message string, err error) *GatewayError {
	return &GatewayError{Category: category, Retryable: category.Retryable(), Message: message, Err: err}
}

// AsGatewayError extracts a GatewayError from err's chain.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// CategoryOf returns the category of a gateway failure, CategoryInternal for
// any other error.
func CategoryOf(err error) ErrorCategory {
	if ge, ok := AsGatewayError(err); ok {
		return ge.Category
	}
	return CategoryInternal
}
