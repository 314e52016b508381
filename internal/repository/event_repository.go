package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/eventdesk/internal/model"
)

// EventRepo provides CRUD and workflow writes for the `events` table.
// Read views join the poster and assignee rows so callers get their
// summaries without extra lookups.
type EventRepo struct{ db DBTX }

func NewEventRepo(db DBTX) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `e.id, e.name, e.description, e.posted_by, e.assigned_to, e.status, e.reject_reason, e.average_rating, e.total_ratings, e.created_at, e.updated_at`

const eventDetailSelect = `SELECT ` + eventColumns + `, p.id, p.username, p.name, a.id, a.username, a.name
FROM events e
JOIN users p ON p.username = e.posted_by
JOIN users a ON a.username = e.assigned_to`

func scanEventInto(e *model.Event, extra ...any) []any {
	return append([]any{&e.ID, &e.Name, &e.Description, &e.PostedBy, &e.AssignedTo, &e.Status}, extra...)
}

type eventNullables struct {
	reason sql.NullString
	avg    sql.NullFloat64
}

func (n eventNullables) apply(e *model.Event) {
	if n.reason.Valid {
		s := n.reason.String
		e.RejectReason = &s
	}
	if n.avg.Valid {
		v := n.avg.Float64
		e.AverageRating = &v
	}
}

func scanEvent(row rowScanner) (model.Event, error) {
	var (
		e model.Event
		n eventNullables
	)
	dest := scanEventInto(&e, &n.reason, &n.avg, &e.TotalRatings, &e.CreatedAt, &e.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return model.Event{}, err
	}
	n.apply(&e)
	return e, nil
}

func scanEventDetail(row rowScanner) (model.EventDetail, error) {
	var (
		d model.EventDetail
		n eventNullables
	)
	dest := scanEventInto(&d.Event, &n.reason, &n.avg, &d.TotalRatings, &d.CreatedAt, &d.UpdatedAt,
		&d.Poster.ID, &d.Poster.Username, &d.Poster.Name,
		&d.Assignee.ID, &d.Assignee.Username, &d.Assignee.Name)
	if err := row.Scan(dest...); err != nil {
		return model.EventDetail{}, err
	}
	n.apply(&d.Event)
	return d, nil
}

// Create inserts e with status POSTED and zeroed reputation.
func (r *EventRepo) Create(ctx context.Context, e model.Event) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (name, description, posted_by, assigned_to, status, average_rating, total_ratings, created_at, updated_at)
		 VALUES (?,?,?,?,?,NULL,0,?,?)`,
		e.Name, e.Description, e.PostedBy, e.AssignedTo, string(model.EventPosted), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return 0, dbErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbErr(err)
	}
	return uint64(id), nil
}

// ByID fetches the bare event row.
func (r *EventRepo) ByID(ctx context.Context, id uint64) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events e WHERE e.id=? LIMIT 1", id))
	return e, dbErr(err)
}

// Detail fetches the event together with poster and assignee summaries.
func (r *EventRepo) Detail(ctx context.Context, id uint64) (model.EventDetail, error) {
	d, err := scanEventDetail(r.db.QueryRowContext(ctx, eventDetailSelect+" WHERE e.id=? LIMIT 1", id))
	return d, dbErr(err)
}

// List returns events newest first, optionally narrowed by f.
func (r *EventRepo) List(ctx context.Context, f model.EventFilter) ([]model.EventDetail, error) {
	var (
		where []string
		args  []any
	)
	if f.PostedBy != "" {
		where = append(where, "e.posted_by = ?")
		args = append(args, f.PostedBy)
	}
	if f.AssignedTo != "" {
		where = append(where, "e.assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		where = append(where, "e.status = ?")
		args = append(args, string(f.Status))
	}
	q := eventDetailSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY e.created_at DESC, e.id DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	out := make([]model.EventDetail, 0)
	for rows.Next() {
		d, err := scanEventDetail(rows)
		if err != nil {
			return nil, dbErr(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}

// UpdateDetails rewrites name and description. Status and assignment are
// never touched here.
func (r *EventRepo) UpdateDetails(ctx context.Context, id uint64, name, description string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE events SET name=?, description=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		name, description, id)
	return dbErr(err)
}

// Transition is the conditional status write. The WHERE clause pins the
// current status to POSTED, so of two racing transitions only one
// affects a row.
func (r *EventRepo) Transition(ctx context.Context, id uint64, status model.EventStatus, reason *string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE events SET status=?, reject_reason=?, updated_at=CURRENT_TIMESTAMP WHERE id=? AND status=?",
		string(status), reason, id, string(model.EventPosted))
	if err != nil {
		return false, dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr(err)
	}
	return n == 1, nil
}

// Delete removes the event row. Ratings must be removed first by the
// caller in the same transaction.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	return expectOne(r.db.ExecContext(ctx, "DELETE FROM events WHERE id=?", id))
}
