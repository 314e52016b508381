package model

import "time"

// Role is the account type stored in users.role.
type Role string

const (
	RoleStandard  Role = "STANDARD"
	RoleOrganizer Role = "ORGANIZER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleOrganizer
}

// User represents an account record as stored in the `users` table.
// The reputation fields are owned by the rating engine: AverageRating
// stays nil until the first rating arrives and both fields are
// rewritten together whenever a rating for this user changes.
//
// Fields:
//
//	ID            – primary key identifier.
//	Username      – unique, case-sensitive handle.
//	Email         – unique email address (lower-cased).
//	Name          – display name.
//	PasswordHash  – bcrypt hash; the per-user salt is embedded in it.
//	Role          – STANDARD or ORGANIZER.
//	AverageRating – mean of all ratings received (nullable).
//	TotalRatings  – number of ratings received.
//	LastLoginAt   – timestamp of the last successful login (nullable).
//	CreatedAt     – timestamp of creation.
type User struct {
	ID            uint64     // users.id
	Username      string     // users.username
	Email         string     // users.email
	Name          string     // users.name
	PasswordHash  string     // users.password_hash
	Role          Role       // users.role
	AverageRating *float64   // users.average_rating (nullable)
	TotalRatings  uint32     // users.total_ratings
	LastLoginAt   *time.Time // users.last_login_at (nullable)
	CreatedAt     time.Time  // users.created_at
}

// PublicUser is the user view returned to clients. It never carries the
// password hash.
type PublicUser struct {
	ID            uint64     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	AverageRating *float64   `json:"average_rating"`
	TotalRatings  uint32     `json:"total_ratings"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Public strips secrets from u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		AverageRating: u.AverageRating,
		TotalRatings:  u.TotalRatings,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// UserSummary is the short form embedded in events and ratings.
type UserSummary struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ResetRequest models a row in `password_resets`. user_id is the primary
// key so a user has at most one live request; issuing a new one
// overwrites the previous row. Only the SHA-256 hash of the code is kept.
type ResetRequest struct {
	UserID    uint64    // password_resets.user_id
	CodeHash  string    // password_resets.code_hash
	ExpiresAt time.Time // password_resets.expires_at
	CreatedAt time.Time // password_resets.created_at
}

// Usable reports whether the request may still be redeemed at now.
// A code is accepted up to and including its expiry instant.
func (r ResetRequest) Usable(now time.Time) bool {
	return !now.After(r.ExpiresAt)
}
