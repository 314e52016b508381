package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/store"
)

// RatingRepo serves `user_ratings` and `event_ratings`. Both relations
// have the same shape, so every method takes the target kind and picks
// the table pair from it.
type RatingRepo struct{ db DBTX }

func NewRatingRepo(db DBTX) *RatingRepo { return &RatingRepo{db: db} }

type ratingTables struct {
	ratings string // rating rows
	target  string // rated rows carrying average_rating / total_ratings
}

func tablesFor(kind model.TargetKind) (ratingTables, error) {
	switch kind {
	case model.TargetUser:
		return ratingTables{ratings: "user_ratings", target: "users"}, nil
	case model.TargetEvent:
		return ratingTables{ratings: "event_ratings", target: "events"}, nil
	}
	return ratingTables{}, fmt.Errorf("unknown rating target kind %q", kind)
}

// LockTarget takes an exclusive lock on the target row. Every rating
// write for a target goes through this first, which serializes writers of
// the same target while leaving other targets alone.
func (r *RatingRepo) LockTarget(ctx context.Context, kind model.TargetKind, targetID uint64) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	var id uint64
	err = r.db.QueryRowContext(ctx, "SELECT id FROM "+t.target+" WHERE id=? FOR UPDATE", targetID).Scan(&id)
	return dbErr(err)
}

func (r *RatingRepo) TargetExists(ctx context.Context, kind model.TargetKind, targetID uint64) (bool, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return false, err
	}
	var id uint64
	err = r.db.QueryRowContext(ctx, "SELECT id FROM "+t.target+" WHERE id=? LIMIT 1", targetID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dbErr(err)
	}
	return true, nil
}

// Upsert relies on UNIQUE(rater_id, target_id): a repeat submission
// rewrites score, review and updated_at of the existing row.
func (r *RatingRepo) Upsert(ctx context.Context, rt model.Rating) error {
	t, err := tablesFor(rt.Kind)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO `+t.ratings+` (rater_id, target_id, score, review, created_at, updated_at) VALUES (?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE score=VALUES(score), review=VALUES(review), updated_at=VALUES(updated_at)`,
		rt.RaterID, rt.TargetID, rt.Score, rt.Review, rt.CreatedAt, rt.UpdatedAt)
	return dbErr(err)
}

const ratingSelect = `SELECT r.id, r.rater_id, r.target_id, r.score, r.review, r.created_at, r.updated_at, u.id, u.username, u.name
FROM %s r
JOIN users u ON u.id = r.rater_id`

func scanRating(row rowScanner, kind model.TargetKind) (model.Rating, error) {
	var (
		rt     model.Rating
		review sql.NullString
	)
	err := row.Scan(&rt.ID, &rt.RaterID, &rt.TargetID, &rt.Score, &review, &rt.CreatedAt, &rt.UpdatedAt,
		&rt.Rater.ID, &rt.Rater.Username, &rt.Rater.Name)
	if err != nil {
		return model.Rating{}, err
	}
	rt.Kind = kind
	if review.Valid {
		s := review.String
		rt.Review = &s
	}
	return rt, nil
}

// Get returns the rating of raterID for targetID.
func (r *RatingRepo) Get(ctx context.Context, kind model.TargetKind, raterID, targetID uint64) (model.Rating, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return model.Rating{}, err
	}
	rt, err := scanRating(r.db.QueryRowContext(ctx,
		fmt.Sprintf(ratingSelect, t.ratings)+" WHERE r.rater_id=? AND r.target_id=? LIMIT 1", raterID, targetID), kind)
	return rt, dbErr(err)
}

// Aggregate recomputes count and mean from every row of the target. The
// mean is NULL (nil) when there are no ratings.
func (r *RatingRepo) Aggregate(ctx context.Context, kind model.TargetKind, targetID uint64) (model.Aggregate, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return model.Aggregate{}, err
	}
	var (
		count int64
		avg   sql.NullFloat64
	)
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(score) FROM "+t.ratings+" WHERE target_id=?", targetID).Scan(&count, &avg)
	if err != nil {
		return model.Aggregate{}, dbErr(err)
	}
	agg := model.Aggregate{Count: uint32(count)}
	if avg.Valid && count > 0 {
		v := avg.Float64
		agg.Average = &v
	}
	return agg, nil
}

// SetAggregate writes average and count onto the target row together.
func (r *RatingRepo) SetAggregate(ctx context.Context, kind model.TargetKind, targetID uint64, agg model.Aggregate) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"UPDATE "+t.target+" SET average_rating=?, total_ratings=? WHERE id=?",
		agg.Average, agg.Count, targetID)
	return dbErr(err)
}

// ListFor returns the ratings of a target, most recently updated first.
func (r *RatingRepo) ListFor(ctx context.Context, kind model.TargetKind, targetID uint64) ([]model.Rating, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(ratingSelect, t.ratings)+" WHERE r.target_id=? ORDER BY r.updated_at DESC, r.id DESC", targetID)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	out := make([]model.Rating, 0)
	for rows.Next() {
		rt, err := scanRating(rows, kind)
		if err != nil {
			return nil, dbErr(err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}

// DeleteForTarget removes every rating of the target.
func (r *RatingRepo) DeleteForTarget(ctx context.Context, kind model.TargetKind, targetID uint64) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, "DELETE FROM "+t.ratings+" WHERE target_id=?", targetID)
	return dbErr(err)
}

var _ store.RatingRepository = (*RatingRepo)(nil)
