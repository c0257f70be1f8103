package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache holds computed rankings and split summaries keyed by season.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// RankingKey names a season ranking computed by one model version.
func RankingKey(version string, season, top int, normalized bool) string {
	return fmt.Sprintf("mvp:rankings:%s:%d:top%d:norm=%t", version, season, top, normalized)
}

// SplitKey names the season partition cached under one model version.
func SplitKey(version string) string {
	return "mvp:split:" + version
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// SetJSON stores v encoded as JSON under key with the cache TTL.
func (rc *RedisCache) SetJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl).Err()
}

// GetJSON decodes the value at key into dst. It reports false on a miss.
func (rc *RedisCache) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// InvalidateSeason drops the cached rankings of a season under every model
// version, along with every cached split.
func (rc *RedisCache) InvalidateSeason(ctx context.Context, season int) (int, error) {
	return rc.deleteMatching(ctx, fmt.Sprintf("mvp:rankings:*:%d:top*", season), "mvp:split:*")
}

// Purge drops every cached ranking and split.
func (rc *RedisCache) Purge(ctx context.Context) (int, error) {
	return rc.deleteMatching(ctx, "mvp:rankings:*", "mvp:split:*")
}

func (rc *RedisCache) deleteMatching(ctx context.Context, patterns ...string) (int, error) {
	var keys []string
	for _, pattern := range patterns {
		iter := rc.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return 0, err
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := rc.client.Del(ctx, keys...).Result()
	return int(n), err
}
