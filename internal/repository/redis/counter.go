// Package redis backs the sequence counters with Redis INCR for deployments
// that keep Postgres off the registration hot path.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/hospital-intake/internal/repository"
	apperrors "github.com/jwalitptl/hospital-intake/pkg/errors"
)

const keyPrefix = "intake:seq:"

// DefaultTTL outlives the longest scope (a calendar month) with room to spare.
const DefaultTTL = 40 * 24 * time.Hour

type CounterStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCounterStore(client *redis.Client, ttl time.Duration) repository.CounterStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CounterStore{client: client, ttl: ttl}
}

// Increment runs INCR and EXPIRE NX in one MULTI so a counter never outlives
// its scope without an expiry, even when an earlier call failed halfway.
func (s *CounterStore) Increment(ctx context.Context, scope string) (int64, error) {
	key := keyPrefix + scope
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return 0, classify(err, scope)
	}
	return incr.Val(), nil
}

func classify(err error, scope string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, redis.ErrClosed) {
		return apperrors.Internal(fmt.Errorf("increment %s: %w", scope, err))
	}
	// Connection resets, timeouts and LOADING replies all clear up on retry.
	return apperrors.Transient(fmt.Errorf("increment %s: %w", scope, err))
}
