package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository/memory"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/messaging"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

type fakeBroker struct {
	mu        sync.Mutex
	failures  int
	published []messaging.Message
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return fmt.Errorf("broker unavailable")
	}
	b.published = append(b.published, message.(messaging.Message))
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, fmt.Errorf("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func newProcessor(t *testing.T, store *memory.Store, broker messaging.Broker, attempts int) *OutboxProcessor {
	t.Helper()
	return NewOutboxProcessor(store.Outbox(), broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Millisecond,
		Channel:       "notifications",
		MaxDeliveries: 2,
	}, logger.Nop(), metrics.New("test", nil))
}

func TestProcessBatch_PublishesAndMarksProcessed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	payload := json.RawMessage(`{"title":"Admission approved"}`)
	require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{EventType: model.EventNotificationCreated, Payload: payload}))

	broker := &fakeBroker{failures: 1}
	n, err := newProcessor(t, store, broker, 3).ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, broker.published, 1)
	assert.Equal(t, model.EventNotificationCreated, broker.published[0].Type)
	assert.JSONEq(t, string(payload), string(broker.published[0].Payload))

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusProcessed, events[0].Status)
}

func TestProcessBatch_RetriesThenParksAsFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{EventType: model.EventNotificationCreated, Payload: json.RawMessage(`{}`)}))

	broker := &fakeBroker{failures: 100}
	p := newProcessor(t, store, broker, 1)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	events := store.Events()
	assert.Equal(t, model.OutboxStatusRetry, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)

	// Second delivery reaches MaxDeliveries.
	require.Eventually(t, func() bool {
		_, err := p.ProcessBatch(ctx)
		return err == nil && store.Events()[0].Status == model.OutboxStatusFailed
	}, time.Second, 5*time.Millisecond)
}
