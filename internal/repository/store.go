package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/eventdesk/internal/store"
)

// Store is the MySQL unit of work. Outside a transaction its repositories
// run on the pool; the Store handed to a WithinTx callback binds them to
// the transaction instead.
type Store struct {
	db   *sql.DB
	q    DBTX
	inTx bool
}

// NewStore wraps an open pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db, q: db} }

// txOptions uses READ COMMITTED so that the aggregate recomputation,
// which runs after the target row lock is held, reads every rating
// committed before the lock was granted.
var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

func (s *Store) Users() store.UserRepository     { return NewUserRepo(s.q) }
func (s *Store) Resets() store.ResetRepository   { return NewResetRepo(s.q) }
func (s *Store) Events() store.EventRepository   { return NewEventRepo(s.q) }
func (s *Store) Ratings() store.RatingRepository { return NewRatingRepo(s.q) }

// WithinTx runs fn in a transaction. Nested calls reuse the outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return WithTx(ctx, s.db, txOptions, func(ctx context.Context, tx DBTX) error {
		return fn(&Store{db: s.db, q: tx, inTx: true})
	})
}

var _ store.Store = (*Store)(nil)
