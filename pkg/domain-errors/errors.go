// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values (via New or Wrap) so transport layers can map
// them to status codes without string matching. Infrastructure facts (not
// found, conflict) come from pkg/platform/sentinel and are translated into
// coded errors by the services that observe them.
package domainerrors

import (
	"errors"
	"maps"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnknownEventType   Code = "unknown_event_type"
	CodeInvalidState       Code = "invalid_state_transition"
	CodeCancellationDenied Code = "cancellation_denied"
	CodeGateway            Code = "gateway_error"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Fields is only populated for validation
// failures and maps a dotted field path to a human-readable reason.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewValidation returns a CodeValidation error carrying per-field reasons.
func NewValidation(message string, fields map[string]string) error {
	return &Error{Code: CodeValidation, Message: message, Fields: maps.Clone(fields)}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message in err's chain.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// FieldsOf returns the field errors of the outermost validation error, if any.
func FieldsOf(err error) map[string]string {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}
