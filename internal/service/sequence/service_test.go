package sequence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-intake/internal/repository/memory"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

var may13 = time.Date(2025, 5, 13, 10, 0, 0, 0, time.UTC)

func newTestService(store interface {
	Increment(context.Context, string) (int64, error)
}, cfg Config) *Service {
	cfg.InitialInterval = time.Microsecond
	return NewService(store, cfg, logger.Nop(), metrics.New("test", nil))
}

// flakyStore fails the first n increments with a transient error.
type flakyStore struct {
	mu    sync.Mutex
	fails int
	calls int
	inner interface {
		Increment(context.Context, string) (int64, error)
	}
	err error
}

func (f *flakyStore) Increment(ctx context.Context, scope string) (int64, error) {
	f.mu.Lock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		if f.err != nil {
			return 0, f.err
		}
		return 0, errors.Transient(fmt.Errorf("could not serialize access"))
	}
	f.mu.Unlock()
	return f.inner.Increment(ctx, scope)
}

func TestFormats(t *testing.T) {
	assert.Equal(t, "P2505001", FormatPatientNumber(may13, 1))
	assert.Equal(t, "V250513001", FormatVisitNumber(may13, 1))
	assert.Equal(t, "V250513042", FormatVisitNumber(may13, 42))
	assert.Equal(t, "patient:2025-05", PatientScope(may13))
	assert.Equal(t, "visit:2025-05-13", VisitScope(may13))

	dept := uuid.MustParse("6f1c7f0e-3f7a-4d1e-9d5c-0a4b1c2d3e4f")
	assert.Equal(t, "token:6f1c7f0e-3f7a-4d1e-9d5c-0a4b1c2d3e4f:2025-05-13", TokenScope(dept, may13))
}

func TestNext_StartsAtOnePerScope(t *testing.T) {
	svc := newTestService(memory.NewStore().Counters(), DefaultConfig())
	ctx := context.Background()

	n, err := svc.Next(ctx, "visit:2025-05-13")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.Next(ctx, "visit:2025-05-13")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = svc.Next(ctx, "visit:2025-05-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new day is a new scope")
}

func TestNext_ConcurrentCallersNeverShareAValue(t *testing.T) {
	svc := newTestService(memory.NewStore().Counters(), DefaultConfig())
	const callers = 200

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values = make(map[int64]int)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.Next(context.Background(), "token:d1:2025-05-13")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			values[n]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, values, callers)
	for v, count := range values {
		assert.Equal(t, 1, count, "value %d issued twice", v)
		assert.True(t, v >= 1 && v <= callers)
	}
}

func TestNext_RetriesTransientContention(t *testing.T) {
	store := &flakyStore{fails: 3, inner: memory.NewStore().Counters()}
	svc := newTestService(store, DefaultConfig())

	n, err := svc.Next(context.Background(), "patient:2025-05")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 4, store.calls)
}

func TestNext_ContentionOutlastsRetryBudget(t *testing.T) {
	store := &flakyStore{fails: 10, inner: memory.NewStore().Counters()}
	svc := newTestService(store, Config{MaxAttempts: 5})

	_, err := svc.Next(context.Background(), "patient:2025-05")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.SequenceExhaustedError))
	assert.Equal(t, 5, store.calls)
}

func TestNext_HardErrorIsNotRetried(t *testing.T) {
	store := &flakyStore{fails: 1, err: errors.Internal(fmt.Errorf("connection refused")), inner: memory.NewStore().Counters()}
	svc := newTestService(store, DefaultConfig())

	_, err := svc.Next(context.Background(), "visit:2025-05-13")
	require.Error(t, err)
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(err))
	assert.Equal(t, 1, store.calls)
}

func TestNext_OverflowIsExhaustedNotWrapped(t *testing.T) {
	svc := newTestService(memory.NewStore().Counters(), Config{Limit: 3})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := svc.Next(ctx, "visit:2025-05-13")
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	_, err := svc.Next(ctx, "visit:2025-05-13")
	assert.True(t, errors.Is(err, errors.SequenceExhaustedError))
	_, err = svc.Next(ctx, "visit:2025-05-13")
	assert.True(t, errors.Is(err, errors.SequenceExhaustedError), "overflow never wraps back to 1")
}

func TestNextPatientAndVisitNumbers(t *testing.T) {
	svc := newTestService(memory.NewStore().Counters(), DefaultConfig())
	ctx := context.Background()

	pn, err := svc.NextPatientNumber(ctx, may13)
	require.NoError(t, err)
	assert.Equal(t, "P2505001", pn)

	// Same month, different day: the patient scope carries on.
	pn, err = svc.NextPatientNumber(ctx, may13.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "P2505002", pn)

	vn, err := svc.NextVisitNumber(ctx, may13)
	require.NoError(t, err)
	assert.Equal(t, "V250513001", vn)
}
