package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/store"
)

const maxReview = 2000

// RatingService records ratings of users and events and keeps the
// target's average and count equal to the mean and count of its stored
// ratings. Both target kinds share one code path.
type RatingService struct {
	store store.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewRatingService(st store.Store, log logrus.FieldLogger, now func() time.Time) *RatingService {
	return &RatingService{store: st, log: orStd(log).WithField("component", "ratings"), now: orNow(now)}
}

// RatingResult is the stored rating and the target's aggregate right
// after the write.
type RatingResult struct {
	Rating    model.Rating    `json:"rating"`
	Aggregate model.Aggregate `json:"aggregate"`
}

// Submit records rater's score for the target, replacing an earlier
// rating by the same rater. The target row is locked, the rating
// upserted and the aggregate recomputed from all rows, all in one
// transaction: concurrent submissions for one target serialize on the
// lock, submissions for different targets do not interact.
//
// Users cannot rate themselves. Events have no such restriction, not even
// for their poster.
func (s *RatingService) Submit(ctx context.Context, rater model.User, kind model.TargetKind, targetID uint64, score int, review string) (RatingResult, error) {
	if !kind.Valid() {
		return RatingResult{}, apperr.Validation("unknown rating target")
	}
	if score < model.MinScore || score > model.MaxScore {
		return RatingResult{}, apperr.Validation("score must be between 1 and 5")
	}
	if kind == model.TargetUser && rater.ID == targetID {
		return RatingResult{}, apperr.SelfRating("you cannot rate yourself")
	}
	rv := optional(review)
	if rv != nil && utf8.RuneCountInString(*rv) > maxReview {
		return RatingResult{}, apperr.Validation("review is too long")
	}

	now := s.now().UTC()
	var res RatingResult
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		ratings := tx.Ratings()
		if err := ratings.LockTarget(ctx, kind, targetID); err != nil {
			if isNotFound(err) {
				return notFoundTarget(kind)
			}
			return internal("lock rating target", err)
		}
		err := ratings.Upsert(ctx, model.Rating{
			Kind:      kind,
			RaterID:   rater.ID,
			TargetID:  targetID,
			Score:     uint8(score),
			Review:    rv,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return internal("upsert rating", err)
		}
		agg, err := ratings.Aggregate(ctx, kind, targetID)
		if err != nil {
			return internal("aggregate ratings", err)
		}
		if err := ratings.SetAggregate(ctx, kind, targetID, agg); err != nil {
			return internal("store aggregate", err)
		}
		stored, err := ratings.Get(ctx, kind, rater.ID, targetID)
		if err != nil {
			return internal("reload rating", err)
		}
		res = RatingResult{Rating: stored, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"kind": kind, "target_id": targetID, "rater_id": rater.ID, "total_ratings": res.Aggregate.Count,
	}).Info("rating recorded")
	return res, nil
}

// ListFor returns the ratings of a target, most recent first, each with
// the rater's summary.
func (s *RatingService) ListFor(ctx context.Context, kind model.TargetKind, targetID uint64) ([]model.Rating, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown rating target")
	}
	ok, err := s.store.Ratings().TargetExists(ctx, kind, targetID)
	if err != nil {
		return nil, internal("check rating target", err)
	}
	if !ok {
		return nil, notFoundTarget(kind)
	}
	out, err := s.store.Ratings().ListFor(ctx, kind, targetID)
	if err != nil {
		return nil, internal("list ratings", err)
	}
	return out, nil
}

func notFoundTarget(kind model.TargetKind) error {
	if kind == model.TargetEvent {
		return apperr.NotFound("event not found")
	}
	return apperr.NotFound("user not found")
}
