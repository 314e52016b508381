package model

import "time"

// EventStatus is the workflow state of an event.
type EventStatus string

const (
	EventPosted   EventStatus = "POSTED"
	EventAccepted EventStatus = "ACCEPTED"
	EventRejected EventStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPosted, EventAccepted, EventRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s EventStatus) Terminal() bool {
	return s == EventAccepted || s == EventRejected
}

// CanTransition reports whether the workflow allows moving from s to next.
// Only POSTED -> ACCEPTED and POSTED -> REJECTED exist.
func (s EventStatus) CanTransition(next EventStatus) bool {
	return s == EventPosted && next.Terminal()
}

// Event represents a row in the `events` table.  PostedBy and
// AssignedTo hold usernames and never change after creation; only
// Name and Description are editable, and Status only moves forward.
//
// Fields:
//
//	ID            – primary key identifier.
//	Name          – event title.
//	Description   – free text.
//	PostedBy      – username of the organizer who created it.
//	AssignedTo    – username of the assignee.
//	Status        – POSTED, ACCEPTED or REJECTED.
//	RejectReason  – optional reason recorded on rejection.
//	AverageRating – mean of all ratings on the event (nullable).
//	TotalRatings  – number of ratings on the event.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last update timestamp.
type Event struct {
	ID            uint64      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	PostedBy      string      `json:"posted_by"`
	AssignedTo    string      `json:"assigned_to"`
	Status        EventStatus `json:"status"`
	RejectReason  *string     `json:"reject_reason,omitempty"`
	AverageRating *float64    `json:"average_rating"`
	TotalRatings  uint32      `json:"total_ratings"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// EventDetail is an event together with denormalized summaries of the
// poster and the assignee.
type EventDetail struct {
	Event
	Poster   UserSummary `json:"poster"`
	Assignee UserSummary `json:"assignee"`
}

// EventFilter narrows event listings. Empty fields are ignored.
type EventFilter struct {
	PostedBy   string
	AssignedTo string
	Status     EventStatus
}
