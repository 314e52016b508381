// Package queue carries notifications from the API to the worker over
// RabbitMQ. The API publishes them; the worker consumes them and performs
// the out-of-band delivery (written to a delivery log).
package queue

import (
	"time"

	"github.com/iliyamo/eventdesk/internal/model"
)

// Notification types.
const (
	TypeResetRequested     = "password.reset_requested"
	TypeEventAssigned      = "event.assigned"
	TypeEventStatusChanged = "event.status_changed"
)

// Notification is the envelope published to the notifications queue.
// Exactly one payload field is set, matching Type.
type Notification struct {
	Type               string              `json:"type"`
	OccurredAt         time.Time           `json:"occurred_at"`
	ResetRequested     *ResetRequested     `json:"reset_requested,omitempty"`
	EventAssigned      *EventAssigned      `json:"event_assigned,omitempty"`
	EventStatusChanged *EventStatusChanged `json:"event_status_changed,omitempty"`
}

// ResetRequested carries a one-time password reset code to its owner.
// The plain code only ever travels on this queue; the database keeps a
// hash.
type ResetRequested struct {
	UserID    uint64    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EventAssigned tells the assignee that an organizer posted an event for
// them.
type EventAssigned struct {
	EventID    uint64 `json:"event_id"`
	Name       string `json:"name"`
	PostedBy   string `json:"posted_by"`
	AssignedTo string `json:"assigned_to"`
}

// EventStatusChanged tells the poster that the assignee accepted or
// rejected the event.
type EventStatusChanged struct {
	EventID      uint64  `json:"event_id"`
	Name         string  `json:"name"`
	PostedBy     string  `json:"posted_by"`
	AssignedTo   string  `json:"assigned_to"`
	Status       string  `json:"status"`
	RejectReason *string `json:"reject_reason,omitempty"`
}

func resetRequested(u model.User, code string, expiresAt time.Time) Notification {
	return Notification{
		Type: TypeResetRequested,
		ResetRequested: &ResetRequested{
			UserID: u.ID, Username: u.Username, Email: u.Email,
			Code: code, ExpiresAt: expiresAt.UTC(),
		},
	}
}

func eventAssigned(e model.Event) Notification {
	return Notification{
		Type: TypeEventAssigned,
		EventAssigned: &EventAssigned{
			EventID: e.ID, Name: e.Name, PostedBy: e.PostedBy, AssignedTo: e.AssignedTo,
		},
	}
}

func eventStatusChanged(e model.Event) Notification {
	return Notification{
		Type: TypeEventStatusChanged,
		EventStatusChanged: &EventStatusChanged{
			EventID: e.ID, Name: e.Name, PostedBy: e.PostedBy, AssignedTo: e.AssignedTo,
			Status: string(e.Status), RejectReason: e.RejectReason,
		},
	}
}
