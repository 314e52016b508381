package repository

import (
	"context"

	"github.com/iliyamo/eventdesk/internal/model"
)

// ResetRepo persists password reset requests (`password_resets`). Only
// the SHA-256 hash of a code is stored; user_id is the primary key so a
// new request replaces the previous one.
type ResetRepo struct{ db DBTX }

func NewResetRepo(db DBTX) *ResetRepo { return &ResetRepo{db: db} }

// Upsert stores r, overwriting any live request of the same user.
func (r *ResetRepo) Upsert(ctx context.Context, req model.ResetRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_resets (user_id, code_hash, expires_at, created_at) VALUES (?,?,?,?)
		 ON DUPLICATE KEY UPDATE code_hash=VALUES(code_hash), expires_at=VALUES(expires_at), created_at=VALUES(created_at)`,
		req.UserID, req.CodeHash, req.ExpiresAt, req.CreatedAt)
	return dbErr(err)
}

// LockByUser reads the request of userID with FOR UPDATE so two
// concurrent redemptions of the same code serialize on the row.
func (r *ResetRepo) LockByUser(ctx context.Context, userID uint64) (model.ResetRequest, error) {
	var req model.ResetRequest
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, code_hash, expires_at, created_at FROM password_resets WHERE user_id=? FOR UPDATE",
		userID).Scan(&req.UserID, &req.CodeHash, &req.ExpiresAt, &req.CreatedAt)
	return req, dbErr(err)
}

// Delete clears the request of userID. Deleting a missing row is not an
// error.
func (r *ResetRepo) Delete(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM password_resets WHERE user_id=?", userID)
	return dbErr(err)
}
