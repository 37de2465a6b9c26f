package domain

import (
	"github.com/google/uuid"

	dErrors "esocial/pkg/domain-errors"
)

// Typed identifiers keep event, employer and notification IDs from being
// mixed up at compile time. Construct them via the Parse* functions at trust
// boundaries; the zero value is the nil UUID.
type (
	EventID        uuid.UUID
	EmployerID     uuid.UUID
	NotificationID uuid.UUID
)

// NewEventID returns a fresh random event ID.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewNotificationID returns a fresh random notification ID.
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

func (i EventID) String() string        { return uuid.UUID(i).String() }
func (i EmployerID) String() string     { return uuid.UUID(i).String() }
func (i NotificationID) String() string { return uuid.UUID(i).String() }

func (i EventID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }
func (i EmployerID) IsNil() bool     { return uuid.UUID(i) == uuid.Nil }
func (i NotificationID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }

// ParseEventID parses an event ID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event ID")
	return EventID(u), err
}

// ParseEmployerID parses an employer ID from external input.
func ParseEmployerID(s string) (EmployerID, error) {
	u, err := parseUUID(s, "employer ID")
	return EmployerID(u), err
}

// ParseNotificationID parses a notification ID from external input.
func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID(s, "notification ID")
	return NotificationID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs with CodeInvalidInput.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// Text marshalling keeps IDs as canonical UUID strings in JSON.

func (i EventID) MarshalText() ([]byte, error)        { return uuid.UUID(i).MarshalText() }
func (i EmployerID) MarshalText() ([]byte, error)     { return uuid.UUID(i).MarshalText() }
func (i NotificationID) MarshalText() ([]byte, error) { return uuid.UUID(i).MarshalText() }

func (i *EventID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i *EmployerID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i *NotificationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}
