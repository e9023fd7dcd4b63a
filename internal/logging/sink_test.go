package logging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()

	err := sink.Enqueue(context.Background(), &ExecutionRecord{
		Timestamp:    time.Now(),
		Operation:    OperationExecute,
		ProviderID:   "p1",
		ProviderType: "openai",
		Success:      true,
	})
	assert.NoError(t, err)
}

func setupRedisBuffer(t *testing.T, cfg RedisBufferConfig) (*RedisBuffer, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisBuffer(client, cfg), mr
}

func record(providerID string) *ExecutionRecord {
	return &ExecutionRecord{
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		Operation:    OperationExecute,
		ProviderID:   providerID,
		ProviderType: "openai",
		Model:        "gpt-4",
		Success:      true,
		DurationMs:   42,
		InputTokens:  2,
		OutputTokens: 1,
		CostUSD:      0.00012,
	}
}

func TestRedisBufferEnqueueDequeue(t *testing.T) {
	rb, _ := setupRedisBuffer(t, RedisBufferConfig{QueueKey: "test:executions"})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, rb.Enqueue(ctx, record(id)))
	}

	size, err := rb.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	got, err := rb.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ProviderID)
	assert.Equal(t, "b", got[1].ProviderID)
	assert.Equal(t, *record("a"), *got[0])

	size, _ = rb.Size(ctx)
	assert.Equal(t, int64(1), size)
}

func TestRedisBufferTrimsOldest(t *testing.T) {
	rb, mr := setupRedisBuffer(t, RedisBufferConfig{QueueKey: "test:executions", MaxSize: 2})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, rb.Enqueue(ctx, record(id)))
	}

	items, err := mr.List("test:executions")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	got, err := rb.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ProviderID)
	assert.Equal(t, "c", got[1].ProviderID)
}

func TestRedisBufferDequeueEmpty(t *testing.T) {
	rb, _ := setupRedisBuffer(t, DefaultRedisBufferConfig())

	got, err := rb.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisBufferClear(t *testing.T) {
	rb, _ := setupRedisBuffer(t, RedisBufferConfig{})
	ctx := context.Background()

	require.NoError(t, rb.Enqueue(ctx, record("a")))
	require.NoError(t, rb.Clear(ctx))

	size, err := rb.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestRedisBufferReportsRedisFailure(t *testing.T) {
	rb, mr := setupRedisBuffer(t, RedisBufferConfig{MaxSize: 10})
	mr.Close()

	err := rb.Enqueue(context.Background(), record("a"))
	assert.Error(t, err)
}
