package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	outagePrefix = "outages:"
	ratePrefix   = "rate:"
	updatePrefix = "upd:"
)

type Cache struct {
	Client *redis.Client
}

func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{Client: client}, nil
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

// GetOutagesJSON returns the cached scrape response for a district, or ""
// on a miss.
func (c *Cache) GetOutagesJSON(ctx context.Context, districtID int) (string, error) {
	val, err := c.Client.Get(ctx, fmt.Sprintf("%s%d", outagePrefix, districtID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// SetOutagesJSON caches a district's scrape response for ttl.
func (c *Cache) SetOutagesJSON(ctx context.Context, districtID int, data string, ttl time.Duration) error {
	return c.Client.Set(ctx, fmt.Sprintf("%s%d", outagePrefix, districtID), data, ttl).Err()
}

// AllowCommand rate-limits inbound chat commands per sender. Limits live in
// Redis rather than a process map so duplicate suppression survives
// restarts and holds across instances.
func (c *Cache) AllowCommand(ctx context.Context, chatID string, limit int, window time.Duration) (bool, error) {
	key := ratePrefix + chatID
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := c.Client.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// MarkUpdateProcessed records a chat-platform update ID and reports whether
// this is the first time it was seen within ttl. Retried webhook deliveries
// of the same update are dropped by every instance, not just the one that
// saw it first.
func (c *Cache) MarkUpdateProcessed(ctx context.Context, updateID string, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, updatePrefix+updateID, 1, ttl).Result()
}
