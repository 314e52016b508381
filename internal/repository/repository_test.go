package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/store"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var ts = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func userRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "email", "name", "password_hash", "role",
		"average_rating", "total_ratings", "last_login_at", "created_at"}).
		AddRow(7, "alice", "alice@example.com", "Alice", "$2a$hash", "ORGANIZER", 4.5, 2, nil, ts)
}

func TestUserRepo_CreateNormalizesEmail(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`(?s)^INSERT INTO users \(username, email, name, password_hash, role, average_rating, total_ratings, created_at\)`).
		WithArgs("alice", "alice@example.com", "Alice", "hash", "STANDARD", ts).
		WillReturnResult(sqlmock.NewResult(11, 1))

	id, err := NewUserRepo(db).Create(context.Background(), model.User{
		Username: "alice", Email: "  Alice@Example.COM ", Name: "Alice",
		PasswordHash: "hash", Role: model.RoleStandard, CreatedAt: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)
}

func TestUserRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'users.username'"})

	_, err := NewUserRepo(db).Create(context.Background(), model.User{Username: "alice", Role: model.RoleStandard})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUserRepo_ByUsername(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`(?s)^SELECT id, username, email, .* FROM users WHERE username=\? LIMIT 1$`).
		WithArgs("alice").
		WillReturnRows(userRow())

	u, err := NewUserRepo(db).ByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u.ID)
	assert.Equal(t, model.RoleOrganizer, u.Role)
	require.NotNil(t, u.AverageRating)
	assert.InDelta(t, 4.5, *u.AverageRating, 1e-9)
	assert.Equal(t, uint32(2), u.TotalRatings)
	assert.Nil(t, u.LastLoginAt)
}

func TestUserRepo_NotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`FROM users WHERE id=\?`).WithArgs(99).WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepo(db).ByID(context.Background(), 99)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserRepo_WrapsDriverErrors(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`FROM users WHERE email=\?`).WillReturnError(errors.New("conn reset"))

	_, err := NewUserRepo(db).ByEmail(context.Background(), "a@b.c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: conn reset")
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestUserRepo_Taken(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT 1 FROM users WHERE username=\?`).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM users WHERE email=\?`).WithArgs("new@example.com").
		WillReturnError(sql.ErrNoRows)

	r := NewUserRepo(db)
	taken, err := r.UsernameTaken(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = r.EmailTaken(context.Background(), "NEW@example.com")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestResetRepo_UpsertAndLock(t *testing.T) {
	db, mock := newMock(t)
	exp := ts.Add(15 * time.Minute)

	mock.ExpectExec(`(?s)INSERT INTO password_resets .* ON DUPLICATE KEY UPDATE code_hash=VALUES\(code_hash\)`).
		WithArgs(uint64(7), "abc", exp, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT user_id, code_hash, expires_at, created_at FROM password_resets WHERE user_id=\? FOR UPDATE`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "code_hash", "expires_at", "created_at"}).
			AddRow(7, "abc", exp, ts))

	r := NewResetRepo(db)
	require.NoError(t, r.Upsert(context.Background(), model.ResetRequest{UserID: 7, CodeHash: "abc", ExpiresAt: exp, CreatedAt: ts}))

	got, err := r.LockByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.CodeHash)
	assert.True(t, got.ExpiresAt.Equal(exp))
}

func TestEventRepo_TransitionIsConditional(t *testing.T) {
	db, mock := newMock(t)

	q := `^UPDATE events SET status=\?, reject_reason=\?, updated_at=CURRENT_TIMESTAMP WHERE id=\? AND status=\?$`
	mock.ExpectExec(q).WithArgs("ACCEPTED", nil, 5, "POSTED").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("REJECTED", "busy", 5, "POSTED").WillReturnResult(sqlmock.NewResult(0, 0))

	r := NewEventRepo(db)
	ok, err := r.Transition(context.Background(), 5, model.EventAccepted, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	reason := "busy"
	ok, err = r.Transition(context.Background(), 5, model.EventRejected, &reason)
	require.NoError(t, err)
	assert.False(t, ok, "no row matched status=POSTED")
}

func TestEventRepo_ListWithFilter(t *testing.T) {
	db, mock := newMock(t)

	cols := []string{"id", "name", "description", "posted_by", "assigned_to", "status", "reject_reason",
		"average_rating", "total_ratings", "created_at", "updated_at",
		"p_id", "p_username", "p_name", "a_id", "a_username", "a_name"}
	mock.ExpectQuery(`(?s)FROM events e\s+JOIN users p ON p.username = e.posted_by\s+JOIN users a ON a.username = e.assigned_to WHERE e.assigned_to = \? AND e.status = \? ORDER BY e.created_at DESC, e.id DESC$`).
		WithArgs("bob", "POSTED").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(3, "Gala", "", "olga", "bob", "POSTED", nil, nil, 0, ts, ts, 1, "olga", "Olga", 2, "bob", "Bob"))

	out, err := NewEventRepo(db).List(context.Background(), model.EventFilter{AssignedTo: "bob", Status: model.EventPosted})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.EventPosted, out[0].Status)
	assert.Nil(t, out[0].AverageRating)
	assert.Equal(t, "Olga", out[0].Poster.Name)
	assert.Equal(t, uint64(2), out[0].Assignee.ID)
}

func TestEventRepo_DeleteMissing(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`DELETE FROM events WHERE id=\?`).WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, NewEventRepo(db).Delete(context.Background(), 9), store.ErrNotFound)
}

func TestRatingRepo_PicksTablesByKind(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`^SELECT id FROM users WHERE id=\? FOR UPDATE$`).WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec(`(?s)^INSERT INTO user_ratings .* ON DUPLICATE KEY UPDATE score=VALUES\(score\)`).
		WithArgs(uint64(1), uint64(2), uint8(4), nil, ts, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`^SELECT COUNT\(\*\), AVG\(score\) FROM user_ratings WHERE target_id=\?$`).WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg"}).AddRow(3, "3.6667"))
	mock.ExpectExec(`^UPDATE users SET average_rating=\?, total_ratings=\? WHERE id=\?$`).
		WithArgs(3.6667, uint32(3), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`^SELECT id FROM events WHERE id=\? FOR UPDATE$`).WithArgs(8).
		WillReturnError(sql.ErrNoRows)

	r := NewRatingRepo(db)
	ctx := context.Background()

	require.NoError(t, r.LockTarget(ctx, model.TargetUser, 2))
	require.NoError(t, r.Upsert(ctx, model.Rating{Kind: model.TargetUser, RaterID: 1, TargetID: 2, Score: 4, CreatedAt: ts, UpdatedAt: ts}))

	agg, err := r.Aggregate(ctx, model.TargetUser, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), agg.Count)
	require.NotNil(t, agg.Average)
	require.NoError(t, r.SetAggregate(ctx, model.TargetUser, 2, agg))

	assert.ErrorIs(t, r.LockTarget(ctx, model.TargetEvent, 8), store.ErrNotFound)
}

func TestRatingRepo_EmptyAggregate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`FROM event_ratings WHERE target_id=\?`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg"}).AddRow(0, nil))

	agg, err := NewRatingRepo(db).Aggregate(context.Background(), model.TargetEvent, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), agg.Count)
	assert.Nil(t, agg.Average)
}

func TestRatingRepo_UnknownKind(t *testing.T) {
	db, _ := newMock(t)

	err := NewRatingRepo(db).LockTarget(context.Background(), model.TargetKind("venue"), 1)
	assert.Error(t, err)
}

func TestRatingRepo_ListForOrdersByRecency(t *testing.T) {
	db, mock := newMock(t)

	cols := []string{"id", "rater_id", "target_id", "score", "review", "created_at", "updated_at", "u_id", "u_username", "u_name"}
	mock.ExpectQuery(`(?s)FROM event_ratings r\s+JOIN users u ON u.id = r.rater_id WHERE r.target_id=\? ORDER BY r.updated_at DESC, r.id DESC$`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, 5, 3, 2, "meh", ts, ts.Add(time.Hour), 5, "eve", "Eve").
			AddRow(1, 4, 3, 5, nil, ts, ts, 4, "dan", "Dan"))

	out, err := NewRatingRepo(db).ListFor(context.Background(), model.TargetEvent, 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "eve", out[0].Rater.Username)
	require.NotNil(t, out[0].Review)
	assert.Equal(t, "meh", *out[0].Review)
	assert.Nil(t, out[1].Review)
	assert.Equal(t, model.TargetEvent, out[1].Kind)
}

func TestStore_WithinTxCommitsAndRollsBack(t *testing.T) {
	db, mock := newMock(t)
	s := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM event_ratings WHERE target_id=\?`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM events WHERE id=\?`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithinTx(context.Background(), func(tx store.Store) error {
		if err := tx.Ratings().DeleteForTarget(context.Background(), model.TargetEvent, 1); err != nil {
			return err
		}
		return tx.Events().Delete(context.Background(), 1)
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM event_ratings WHERE target_id=\?`).WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM events WHERE id=\?`).WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = s.WithinTx(context.Background(), func(tx store.Store) error {
		// nested calls join the outer transaction
		return tx.WithinTx(context.Background(), func(inner store.Store) error {
			if err := inner.Ratings().DeleteForTarget(context.Background(), model.TargetEvent, 2); err != nil {
				return err
			}
			return inner.Events().Delete(context.Background(), 2)
		})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			panic("boom")
		})
	})
}
