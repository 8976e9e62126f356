package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// CacheClient provides JSON caching and counters on Redis
type CacheClient struct {
	client *redis.Client
}

// NewCacheClient wraps an existing connection
func NewCacheClient(client *redis.Client) *CacheClient {
	return &CacheClient{client: client}
}

// Set stores value as JSON
func (c *CacheClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get decodes the JSON stored at key into dest
func (c *CacheClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

// IncrementCounters applies several hash increments in one round trip
func (c *CacheClient) IncrementCounters(ctx context.Context, key string, fields map[string]int64) error {
	pipe := c.client.TxPipeline()
	for field, incr := range fields {
		pipe.HIncrBy(ctx, key, field, incr)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// HGetAll gets all fields from a hash
func (c *CacheClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// PushCapped prepends value as JSON and keeps only the newest max entries
func (c *CacheClient) PushCapped(ctx context.Context, key string, value interface{}, max int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, max-1)
	_, err = pipe.Exec(ctx)
	return err
}

// LRange gets a range of elements from a list
func (c *CacheClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.client.LRange(ctx, key, start, stop).Result()
}

// Ping checks the connection
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying connection
func (c *CacheClient) Close() error {
	return c.client.Close()
}
