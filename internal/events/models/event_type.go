package models

import (
	dErrors "esocial/pkg/domain-errors"
)

// EventType is the closed set of compliance event tags.
type EventType string

const (
	TypeEmployerRegistration    EventType = "employer_registration"
	TypeInitialRegistration     EventType = "initial_registration"
	TypeCadastralUpdate         EventType = "cadastral_update"
	TypeContractChange          EventType = "contract_change"
	TypeWorkplaceAccident       EventType = "workplace_accident"
	TypeLeaveOfAbsence          EventType = "leave_of_absence"
	TypeEnvironmentalConditions EventType = "environmental_conditions"
	TypePriorNotice             EventType = "prior_notice"
	TypeTermination             EventType = "termination"
	TypeRetirementBenefit       EventType = "retirement_benefit"
)

// allEventTypes is ordered by government event code.
var allEventTypes = []EventType{
	TypeEmployerRegistration,
	TypeInitialRegistration,
	TypeCadastralUpdate,
	TypeContractChange,
	TypeWorkplaceAccident,
	TypeLeaveOfAbsence,
	TypeEnvironmentalConditions,
	TypePriorNotice,
	TypeTermination,
	TypeRetirementBenefit,
}

var governmentCodes = map[EventType]string{
	TypeEmployerRegistration:    "S-1000",
	TypeInitialRegistration:     "S-2200",
	TypeCadastralUpdate:         "S-2205",
	TypeContractChange:          "S-2206",
	TypeWorkplaceAccident:       "S-2210",
	TypeLeaveOfAbsence:          "S-2230",
	TypeEnvironmentalConditions: "S-2240",
	TypePriorNotice:             "S-2250",
	TypeTermination:             "S-2299",
	TypeRetirementBenefit:       "S-2400",
}

// AllEventTypes returns every event type in code order.
func AllEventTypes() []EventType {
	return append([]EventType(nil), allEventTypes...)
}

func (t EventType) IsValid() bool {
	_, ok := governmentCodes[t]
	return ok
}

// Code returns the government event code (e.g. "S-2210"), or "" for an
// unknown type.
func (t EventType) Code() string {
	return governmentCodes[t]
}

func (t EventType) String() string { return string(t) }

// ParseEventType validates an external type tag.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeUnknownEventType, "unknown event type: "+s)
	}
	return t, nil
}
