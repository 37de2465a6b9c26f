package models

import (
	"slices"
	"time"

	id "esocial/pkg/domain"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListFilter selects events for listing. Zero-valued fields do not filter.
type ListFilter struct {
	EmployerID  id.EmployerID
	Types       []EventType
	Statuses    []Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// WithDefaults clamps Limit and Offset into their allowed ranges.
func (f ListFilter) WithDefaults() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches applies every non-zero criterion except paging.
func (f ListFilter) Matches(e *ComplianceEvent) bool {
	if !f.EmployerID.IsNil() && e.EmployerID != f.EmployerID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.Status) {
		return false
	}
	if f.CreatedFrom != nil && e.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !e.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	return true
}
