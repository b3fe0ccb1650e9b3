package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-intake/internal/repository"
)

type counterRepository struct {
	BaseRepository
}

func NewCounterRepository(base BaseRepository) repository.CounterStore {
	return &counterRepository{base}
}

// Increment is a single upsert, so the row lock taken by ON CONFLICT serializes
// concurrent callers of the same scope without a read-then-write window.
func (r *counterRepository) Increment(ctx context.Context, scope string) (int64, error) {
	query := `
		INSERT INTO sequence_counters (scope, value, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (scope) DO UPDATE
		SET value = sequence_counters.value + 1, updated_at = NOW()
		RETURNING value
	`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, scope); err != nil {
		return 0, classify(err, "increment sequence "+scope)
	}
	return value, nil
}

// lockKeys takes transaction-scoped advisory locks in the given order. Callers
// sort keys so two transactions never wait on each other in opposite order.
func lockKeys(ctx context.Context, tx *sqlx.Tx, keys []string) error {
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return err
		}
	}
	return nil
}
