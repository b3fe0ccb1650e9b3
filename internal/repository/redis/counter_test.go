package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/hospital-intake/pkg/errors"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestIncrementStartsAtOneAndSetsTTL(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewCounterStore(client, time.Hour)

	n, err := store.Increment(context.Background(), "visit:2025-05-13")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"visit:2025-05-13"))

	n, err = store.Increment(context.Background(), "visit:2025-05-13")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIncrementKeepsFirstExpiry(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewCounterStore(client, time.Hour)
	key := keyPrefix + "visit:2025-05-14"

	_, err := store.Increment(context.Background(), "visit:2025-05-14")
	require.NoError(t, err)
	mr.FastForward(10 * time.Minute)

	_, err = store.Increment(context.Background(), "visit:2025-05-14")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Minute, mr.TTL(key))
}

// A counter left without an expiry (an EXPIRE lost after INCR) gets one on
// the next increment.
func TestIncrementRepairsMissingExpiry(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewCounterStore(client, time.Hour)
	key := keyPrefix + "visit:2025-05-15"
	require.NoError(t, mr.Set(key, "1"))
	require.Equal(t, time.Duration(0), mr.TTL(key))

	n, err := store.Increment(context.Background(), "visit:2025-05-15")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestIncrementConcurrentCallersGetDistinctValues(t *testing.T) {
	_, client := setupRedis(t)
	store := NewCounterStore(client, 0)

	const callers = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.Increment(context.Background(), "token:d1:2025-05-13")
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, callers)
	for i := int64(1); i <= callers; i++ {
		assert.True(t, seen[i], "missing %d", i)
	}
}

func TestIncrementServerDownIsTransient(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewCounterStore(client, 0)
	mr.Close()

	_, err := store.Increment(context.Background(), "patient:2025-05")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}
