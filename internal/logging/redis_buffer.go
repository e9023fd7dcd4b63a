package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBuffer is a Sink that appends execution records to a Redis list,
// keeping at most MaxSize of the newest entries.
type RedisBuffer struct {
	client    redis.UniversalClient
	queueKey  string
	maxSize   int64 // 0 = unlimited
	batchSize int
}

// RedisBufferConfig holds configuration for Redis buffer
type RedisBufferConfig struct {
	QueueKey  string
	MaxSize   int64
	BatchSize int
}

// DefaultRedisBufferConfig returns default configuration
func DefaultRedisBufferConfig() RedisBufferConfig {
	return RedisBufferConfig{
		QueueKey:  "lens:executions",
		MaxSize:   100000,
		BatchSize: 100,
	}
}

// NewRedisBuffer creates a new Redis-backed execution log
func NewRedisBuffer(client redis.UniversalClient, cfg RedisBufferConfig) *RedisBuffer {
	defaults := DefaultRedisBufferConfig()
	if cfg.QueueKey == "" {
		cfg.QueueKey = defaults.QueueKey
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	return &RedisBuffer{
		client:    client,
		queueKey:  cfg.QueueKey,
		maxSize:   cfg.MaxSize,
		batchSize: cfg.BatchSize,
	}
}

// RPUSH then drop the oldest entries beyond max_size.
var enqueueScript = redis.NewScript(`
	local key = KEYS[1]
	local max_size = tonumber(ARGV[2])

	redis.call('RPUSH', key, ARGV[1])

	local len = redis.call('LLEN', key)
	if len > max_size then
		redis.call('LTRIM', key, len - max_size, -1)
	end

	return len
`)

// Pop up to count entries from the head (oldest first).
var dequeueScript = redis.NewScript(`
	local key = KEYS[1]
	local count = tonumber(ARGV[1])

	local records = redis.call('LRANGE', key, 0, count - 1)
	if #records > 0 then
		redis.call('LTRIM', key, #records, -1)
	end

	return records
`)

// Enqueue appends a record to the list
func (rb *RedisBuffer) Enqueue(ctx context.Context, rec *ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}

	if rb.maxSize > 0 {
		err = enqueueScript.Run(ctx, rb.client, []string{rb.queueKey}, data, rb.maxSize).Err()
	} else {
		err = rb.client.RPush(ctx, rb.queueKey, data).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue execution record: %w", err)
	}

	return nil
}

// Dequeue removes and returns up to count of the oldest records. A
// non-positive count uses the configured batch size.
func (rb *RedisBuffer) Dequeue(ctx context.Context, count int) ([]*ExecutionRecord, error) {
	if count <= 0 {
		count = rb.batchSize
	}

	result, err := dequeueScript.Run(ctx, rb.client, []string{rb.queueKey}, count).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	records := make([]*ExecutionRecord, 0, len(result))
	for i, data := range result {
		var rec ExecutionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", i, err)
		}
		records = append(records, &rec)
	}

	return records, nil
}

// Size returns the current queue size
func (rb *RedisBuffer) Size(ctx context.Context) (int64, error) {
	return rb.client.LLen(ctx, rb.queueKey).Result()
}

// Clear removes all records from the queue
func (rb *RedisBuffer) Clear(ctx context.Context) error {
	return rb.client.Del(ctx, rb.queueKey).Err()
}
