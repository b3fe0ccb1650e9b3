package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/messaging"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	broker := NewRedisBroker(client, logger.Nop())
	t.Cleanup(func() { broker.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := broker.Subscribe(ctx, "notifications")
	require.NoError(t, err)

	msg := messaging.Message{ID: "e1", Type: "notification.created", Payload: json.RawMessage(`{"title":"hi"}`)}
	require.NoError(t, broker.Publish(ctx, "notifications", msg))

	select {
	case raw := <-ch:
		var got messaging.Message
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "e1", got.ID)
		assert.JSONEq(t, `{"title":"hi"}`, string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestPublishOpensBreakerAfterFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	broker := NewRedisBroker(client, logger.Nop())
	t.Cleanup(func() { broker.Close() })
	mr.Close()

	for i := 0; i < 5; i++ {
		assert.Error(t, broker.Publish(context.Background(), "notifications", "x"))
	}
	err := broker.Publish(context.Background(), "notifications", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
