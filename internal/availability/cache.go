package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps computed reports in Redis for a short TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache returns nil when client is nil or ttl is not positive, which
// callers treat as "caching disabled".
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "availability"}
}

func (c *RedisCache) key(q Query) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, q.ClinicID, q.ServiceID, q.Day())
}

// Get returns the cached report and whether it was present.
func (c *RedisCache) Get(ctx context.Context, q Query) ([]Slot, bool, error) {
	data, err := c.client.Get(ctx, c.key(q)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("availability: cache get: %w", err)
	}
	var slots []Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, false, fmt.Errorf("availability: cache decode: %w", err)
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, true, nil
}

// Set stores the report under the query key.
func (c *RedisCache) Set(ctx context.Context, q Query, slots []Slot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("availability: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(q), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("availability: cache set: %w", err)
	}
	return nil
}

// Invalidate removes the report for the query key.
func (c *RedisCache) Invalidate(ctx context.Context, q Query) error {
	if err := c.client.Del(ctx, c.key(q)).Err(); err != nil {
		return fmt.Errorf("availability: cache delete: %w", err)
	}
	return nil
}
