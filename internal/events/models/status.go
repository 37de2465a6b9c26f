package models

import (
	dErrors "esocial/pkg/domain-errors"
)

// Status is the lifecycle position of a compliance event.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusProcessed Status = "PROCESSED"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
)

// transitions lists the legal next states. CANCELLED has none.
var transitions = map[Status][]Status{
	StatusPending:   {StatusSubmitted, StatusError},
	StatusSubmitted: {StatusProcessed, StatusError},
	StatusProcessed: {StatusCancelled},
	StatusError:     {StatusSubmitted, StatusError},
	StatusCancelled: nil,
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusCancelled
}

// CanTransitionTo reports whether to is reachable from s in one step.
// PENDING→ERROR and ERROR→ERROR are the failed-submission edges: the attempt
// is recorded but the event never reaches SUBMITTED.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus validates an external status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown status: "+s)
	}
	return st, nil
}
