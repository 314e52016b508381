package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/eventdesk/internal/model"
)

// UserRepo reads and writes the `users` table. Emails are normalized to
// lower case on the way in; usernames are stored exactly as given and
// compared case-sensitively (the column uses a binary collation).
type UserRepo struct{ db DBTX }

func NewUserRepo(db DBTX) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, email, name, password_hash, role, average_rating, total_ratings, last_login_at, created_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u         model.User
		role      string
		avg       sql.NullFloat64
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &role,
		&avg, &u.TotalRatings, &lastLogin, &u.CreatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if avg.Valid {
		v := avg.Float64
		u.AverageRating = &v
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// Create inserts u with zeroed reputation and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, email, name, password_hash, role, average_rating, total_ratings, created_at) VALUES (?,?,?,?,?,NULL,0,?)",
		u.Username, normalizeEmail(u.Email), u.Name, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		return 0, dbErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbErr(err)
	}
	return uint64(id), nil
}

// ByID fetches a user by id.
func (r *UserRepo) ByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, dbErr(err)
}

// ByUsername fetches a user by exact username.
func (r *UserRepo) ByUsername(ctx context.Context, username string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username))
	return u, dbErr(err)
}

// ByEmail fetches a user by normalized email.
func (r *UserRepo) ByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
	return u, dbErr(err)
}

func (r *UserRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM users WHERE username=? LIMIT 1", username)
}

func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
}

func (r *UserRepo) exists(ctx context.Context, q string, arg any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dbErr(err)
	}
	return true, nil
}

// TouchLogin records a successful login.
func (r *UserRepo) TouchLogin(ctx context.Context, id uint64, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		"UPDATE users SET last_login_at=? WHERE id=?", at, id))
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return expectOne(r.db.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", hash, id))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
