package model

import "time"

// TargetKind selects which relation a rating belongs to. Ratings of
// users and ratings of events share one shape and one aggregation path.
type TargetKind string

const (
	TargetUser  TargetKind = "user"
	TargetEvent TargetKind = "event"
)

// Valid reports whether k is a known target kind.
func (k TargetKind) Valid() bool {
	return k == TargetUser || k == TargetEvent
}

const (
	MinScore = 1
	MaxScore = 5
)

// Rating is one row of `user_ratings` or `event_ratings`. The pair
// (RaterID, TargetID) is unique per kind; a repeat submission rewrites
// Score, Review and UpdatedAt in place.
type Rating struct {
	ID        uint64      `json:"id"`
	Kind      TargetKind  `json:"target_kind"`
	RaterID   uint64      `json:"rater_id"`
	TargetID  uint64      `json:"target_id"`
	Score     uint8       `json:"score"`
	Review    *string     `json:"review,omitempty"`
	Rater     UserSummary `json:"rater"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Aggregate is the derived reputation stored on a target row.
type Aggregate struct {
	Average *float64 `json:"average_rating"`
	Count   uint32   `json:"total_ratings"`
}
