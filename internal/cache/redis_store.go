// Package cache provides the optional Redis cache for per-project comment
// aggregates. The cached value is user-independent: unread status is derived
// from lastCommentTime against each user's own view marker, so marking a
// project viewed never needs an invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProjectStats is the aggregate cached per project.
type ProjectStats struct {
	FileCount          int        `json:"fileCount"`
	TotalComments      int        `json:"totalComments"`
	UnresolvedComments int        `json:"unresolvedComments"`
	LastCommentTime    *time.Time `json:"lastCommentTime"`
}

// RedisStore caches project aggregates with a short TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a cache from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisStore{
		client: client,
		prefix: "projstats:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(projectID string) string {
	return s.prefix + projectID
}

// GetProjectStats returns the cached aggregate, or nil on a miss. A miss is
// not an error.
func (s *RedisStore) GetProjectStats(ctx context.Context, projectID string) (*ProjectStats, error) {
	payload, err := s.client.Get(ctx, s.key(projectID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project stats: %w", err)
	}

	var stats ProjectStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return nil, fmt.Errorf("unmarshal project stats: %w", err)
	}
	return &stats, nil
}

func (s *RedisStore) SetProjectStats(ctx context.Context, projectID string, stats ProjectStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal project stats: %w", err)
	}
	if err := s.client.Set(ctx, s.key(projectID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set project stats: %w", err)
	}
	return nil
}

// InvalidateProject drops the cached aggregate. Called whenever a comment or
// file of the project changes.
func (s *RedisStore) InvalidateProject(ctx context.Context, projectID string) error {
	if err := s.client.Del(ctx, s.key(projectID)).Err(); err != nil {
		return fmt.Errorf("invalidate project stats: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
