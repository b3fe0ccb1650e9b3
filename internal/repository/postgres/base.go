package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db, now: time.Now}
}

// WithClock sets the time source used for row timestamps.
func (r BaseRepository) WithClock(now func() time.Time) BaseRepository {
	r.now = now
	return r
}

// WithTx executes a function within a transaction. Errors from fn and from the
// commit are classified before they are returned.
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return r.withTxOptions(ctx, nil, fn)
}

func (r *BaseRepository) withTxOptions(ctx context.Context, opts *sql.TxOptions, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return classify(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err, "transaction")
	}

	if err := tx.Commit(); err != nil {
		return classify(err, "commit")
	}
	return nil
}
