package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*ProcessedEventsStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewProcessedEventsStore(client, zap.NewNop()), mr
}

func TestProcessedEventsStore_MarkAndCheck(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.Ping(ctx))

	processed, err := store.IsProcessed(ctx, "order-created:A1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.MarkProcessed(ctx, "order-created:A1", time.Minute))

	processed, err = store.IsProcessed(ctx, "order-created:A1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.True(t, mr.Exists("inventory:processed:order-created:A1"))
}

func TestProcessedEventsStore_TTLExpiration(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.MarkProcessed(ctx, "evt-1", time.Second))
	mr.FastForward(2 * time.Second)

	processed, err := store.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessedEventsStore_RedisDown(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	store := NewProcessedEventsStore(client, zap.NewNop())

	_, err := store.IsProcessed(ctx, "evt-1")
	assert.Error(t, err)
	assert.Error(t, store.MarkProcessed(ctx, "evt-1", time.Minute))
	_, err = store.TryMarkProcessed(ctx, "evt-1", time.Minute)
	assert.Error(t, err)
}

func TestProcessedEventsStore_TryMarkProcessed(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	claimed, err := store.TryMarkProcessed(ctx, "order-created:A1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.TryMarkProcessed(ctx, "order-created:A1", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.Equal(t, time.Minute, mr.TTL("inventory:processed:order-created:A1"))

	mr.FastForward(2 * time.Minute)
	claimed, err = store.TryMarkProcessed(ctx, "order-created:A1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}
