package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/infrastructure/jobcodec"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
)

const (
	// jobCacheKeyPrefix is the prefix for job cache keys in Redis.
	jobCacheKeyPrefix = "job:"
)

// RedisJobCache implements JobCache using Redis as the backing store.
type RedisJobCache struct {
	client *redis.Client
}

// Compile-time verification that RedisJobCache implements JobCache.
var _ JobCache = (*RedisJobCache)(nil)

// NewRedisJobCache creates a new Redis-backed job cache.
func NewRedisJobCache(client *redis.Client) *RedisJobCache {
	return &RedisJobCache{
		client: client,
	}
}

// Get retrieves a job from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisJobCache) Get(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error) {
	key := c.buildKey(jobID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
			return nil, nil // Cache miss
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	job, err := c.deserialize(data)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("deserialize job: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return job, nil
}

// Set stores a job in Redis cache with the specified TTL.
func (c *RedisJobCache) Set(ctx context.Context, job *model.TranscodeJob, ttl time.Duration) error {
	key := c.buildKey(job.ID)

	data, err := c.serialize(job)
	if err != nil {
		return fmt.Errorf("serialize job: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Delete removes a job from Redis cache.
func (c *RedisJobCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	key := c.buildKey(jobID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Ping checks that Redis is reachable.
func (c *RedisJobCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// buildKey constructs the Redis key for a job.
func (c *RedisJobCache) buildKey(jobID uuid.UUID) string {
	return jobCacheKeyPrefix + jobID.String()
}

// serialize converts a job to JSON bytes.
func (c *RedisJobCache) serialize(job *model.TranscodeJob) ([]byte, error) {
	return json.Marshal(jobcodec.FromJob(job))
}

// deserialize converts JSON bytes to a job.
func (c *RedisJobCache) deserialize(data []byte) (*model.TranscodeJob, error) {
	var record jobcodec.Job
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return record.ToJob()
}
