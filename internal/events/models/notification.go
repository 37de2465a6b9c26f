package models

import (
	"time"

	id "esocial/pkg/domain"
)

// NotificationKind distinguishes informational notes from alerts.
type NotificationKind string

const (
	KindInfo  NotificationKind = "INFO"
	KindAlert NotificationKind = "ALERT"
)

func (k NotificationKind) IsValid() bool {
	return k == KindInfo || k == KindAlert
}

// Notification annotates an event. It never drives the state machine.
type Notification struct {
	ID        id.NotificationID `json:"id"`
	EventID   id.EventID        `json:"event_id"`
	Kind      NotificationKind  `json:"kind"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ApplyRead marks the notification read. It reports false when it already was,
// leaving ReadAt untouched.
func (n *Notification) ApplyRead(now time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &now
	return true
}
