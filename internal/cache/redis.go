// Package cache provides the Redis-backed embedding and completion caches
// and API rate limit counters.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/testforge/docforge/internal/config"
)

// Key prefixes
const (
	PrefixEmbedding  = "emb:"
	PrefixCompletion = "llm:"
	PrefixRateLimit  = "ratelimit:"
)

// RateLimitWindow is the fixed window CheckRateLimit counts requests in.
const RateLimitWindow = time.Minute

// Cache provides Redis caching functionality
type Cache struct {
	client *redis.Client
}

// New creates a new Redis cache client
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for advanced operations
func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetEmbedding retrieves a cached embedding. A miss is not an error.
func (c *Cache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, PrefixEmbedding+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting embedding from cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("unmarshaling embedding: %w", err)
	}
	return embedding, true, nil
}

// SetEmbedding caches an embedding
func (c *Cache) SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshaling embedding: %w", err)
	}
	return c.client.Set(ctx, PrefixEmbedding+key, data, ttl).Err()
}

// InvalidateEmbeddings removes every cached embedding
func (c *Cache) InvalidateEmbeddings(ctx context.Context) error {
	return c.invalidate(ctx, PrefixEmbedding)
}

func (c *Cache) invalidate(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("deleting %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// GetCompletion retrieves a cached model response. A miss is not an error.
func (c *Cache) GetCompletion(ctx context.Context, key string) (string, bool, error) {
	text, err := c.client.Get(ctx, PrefixCompletion+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting completion from cache: %w", err)
	}
	return text, true, nil
}

// SetCompletion caches a model response
func (c *Cache) SetCompletion(ctx context.Context, key, text string, ttl time.Duration) error {
	return c.client.Set(ctx, PrefixCompletion+key, text, ttl).Err()
}

// InvalidateCompletions removes every cached model response
func (c *Cache) InvalidateCompletions(ctx context.Context) error {
	return c.invalidate(ctx, PrefixCompletion)
}

// CheckRateLimit counts one request for key in the current window and
// reports whether the count is within limit.
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	fullKey := PrefixRateLimit + key

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, RateLimitWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	return count <= limit, count, nil
}
