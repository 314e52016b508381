// Package store declares the persistence contract the services depend on.
// A Store hands out per-aggregate repositories and a unit-of-work
// primitive; repositories obtained from the Store passed to a WithinTx
// callback all run inside the same transaction.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/eventdesk/internal/model"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("duplicate")
)

// Store is the unit of work. WithinTx commits when fn returns nil and rolls
// back otherwise.
type Store interface {
	Users() UserRepository
	Resets() ResetRepository
	Events() EventRepository
	Ratings() RatingRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type UserRepository interface {
	// Create inserts u and returns its id. ErrDuplicate on a username or
	// email collision.
	Create(ctx context.Context, u model.User) (uint64, error)
	ByID(ctx context.Context, id uint64) (model.User, error)
	ByUsername(ctx context.Context, username string) (model.User, error)
	ByEmail(ctx context.Context, email string) (model.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	TouchLogin(ctx context.Context, id uint64, at time.Time) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
}

type ResetRepository interface {
	// Upsert stores r, replacing any previous request of the same user.
	Upsert(ctx context.Context, r model.ResetRequest) error
	// LockByUser reads the request of userID and holds a row lock on it
	// until the surrounding transaction ends.
	LockByUser(ctx context.Context, userID uint64) (model.ResetRequest, error)
	Delete(ctx context.Context, userID uint64) error
}

type EventRepository interface {
	Create(ctx context.Context, e model.Event) (uint64, error)
	ByID(ctx context.Context, id uint64) (model.Event, error)
	Detail(ctx context.Context, id uint64) (model.EventDetail, error)
	List(ctx context.Context, f model.EventFilter) ([]model.EventDetail, error)
	UpdateDetails(ctx context.Context, id uint64, name, description string) error
	// Transition moves a POSTED event to status. It reports false when the
	// event was no longer POSTED at the time of the write.
	Transition(ctx context.Context, id uint64, status model.EventStatus, reason *string) (bool, error)
	Delete(ctx context.Context, id uint64) error
}

// RatingRepository serves both rating relations; kind selects the table
// pair (ratings table, target table).
type RatingRepository interface {
	// LockTarget takes a row lock on the rated user or event. ErrNotFound
	// when the target does not exist.
	LockTarget(ctx context.Context, kind model.TargetKind, targetID uint64) error
	TargetExists(ctx context.Context, kind model.TargetKind, targetID uint64) (bool, error)
	// Upsert inserts the rating or rewrites score, review and updated_at of
	// the existing (rater, target) row.
	Upsert(ctx context.Context, r model.Rating) error
	Get(ctx context.Context, kind model.TargetKind, raterID, targetID uint64) (model.Rating, error)
	// Aggregate computes count and mean over every stored rating of the
	// target.
	Aggregate(ctx context.Context, kind model.TargetKind, targetID uint64) (model.Aggregate, error)
	SetAggregate(ctx context.Context, kind model.TargetKind, targetID uint64, agg model.Aggregate) error
	ListFor(ctx context.Context, kind model.TargetKind, targetID uint64) ([]model.Rating, error)
	DeleteForTarget(ctx context.Context, kind model.TargetKind, targetID uint64) error
}
