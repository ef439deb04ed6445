package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "trackrelay:"

// RedisDedupGuard drops replays of the same (dataset, event id) inside a short window
// before they reach the database. The unique index stays authoritative: a guard that
// is nil, unreachable or expired only costs one extra insert attempt.
type RedisDedupGuard struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisDedupGuard returns a guard holding keys under prefix for window. A nil client yields a no-op guard.
func NewRedisDedupGuard(client *redis.Client, prefix string, window time.Duration) *RedisDedupGuard {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisDedupGuard{client: client, prefix: prefix, window: window}
}

// Acquire reports whether the key was free and claims it
func (g *RedisDedupGuard) Acquire(ctx context.Context, datasetID uuid.UUID, eventID string) (bool, error) {
	if g == nil || g.client == nil || g.window <= 0 {
		return true, nil
	}
	ok, err := g.client.SetNX(ctx, g.key(datasetID, eventID), 1, g.window).Result()
	if err != nil {
		return true, fmt.Errorf("dedup guard acquire: %w", err)
	}
	return ok, nil
}

// Release frees a key whose event was never persisted
func (g *RedisDedupGuard) Release(ctx context.Context, datasetID uuid.UUID, eventID string) error {
	if g == nil || g.client == nil {
		return nil
	}
	if err := g.client.Del(ctx, g.key(datasetID, eventID)).Err(); err != nil {
		return fmt.Errorf("dedup guard release: %w", err)
	}
	return nil
}

func (g *RedisDedupGuard) key(datasetID uuid.UUID, eventID string) string {
	return g.prefix + "dedup:" + datasetID.String() + ":" + eventID
}

// NewRedisClient connects to the Redis instance at redisURL. It returns nil when redisURL is empty.
func NewRedisClient(ctx context.Context, redisURL string, db int) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if db > 0 {
		opts.DB = db
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
