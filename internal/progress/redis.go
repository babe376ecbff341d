package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 300 * time.Second

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Connect opens a Redis client and verifies it answers
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// RedisCache stores snapshots as JSON strings with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisCache) Get(ctx context.Context, jobID string) (domain.ProgressSnapshot, bool) {
	data, err := c.client.Get(ctx, Key(jobID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read progress from cache",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
		return domain.ProgressSnapshot{}, false
	}

	var snapshot domain.ProgressSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.Warn("Discarding malformed progress cache entry",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return domain.ProgressSnapshot{}, false
	}

	return snapshot, true
}

func (c *RedisCache) Set(ctx context.Context, snapshot domain.ProgressSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn("Failed to encode progress snapshot",
			slog.String("job_id", snapshot.JobID),
			slog.Any("error", err),
		)
		return
	}

	if err := c.client.Set(ctx, Key(snapshot.JobID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write progress to cache",
			slog.String("job_id", snapshot.JobID),
			slog.Any("error", err),
		)
	}
}

func (c *RedisCache) Fill(ctx context.Context, snapshot domain.ProgressSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn("Failed to encode progress snapshot",
			slog.String("job_id", snapshot.JobID),
			slog.Any("error", err),
		)
		return
	}

	// SETNX: a worker write that lands first is never replaced by an older store read
	if err := c.client.SetNX(ctx, Key(snapshot.JobID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to fill progress cache",
			slog.String("job_id", snapshot.JobID),
			slog.Any("error", err),
		)
	}
}

func (c *RedisCache) Delete(ctx context.Context, jobID string) {
	if err := c.client.Del(ctx, Key(jobID)).Err(); err != nil {
		c.logger.Warn("Failed to delete progress from cache",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

// HealthCheck pings the cache server
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
