package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webberzone/gluelink/internal/domain"
)

// Status counts back a UI summary, so a stale value is acceptable for a
// while.
const countsTTL = time.Hour

// Cache is a Redis-backed read cache for subscriber records and the
// aggregate status counts. Every method fails open: a Redis error is
// logged and reported as a miss so the database stays authoritative.
// A nil *Cache is valid and always misses.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache connects to Redis and wraps the client in a Cache.
func NewCache(ctx context.Context, redisURL string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Cache{client: client, logger: logger}, nil
}

// NewCacheWithClient wraps an existing Redis client.
func NewCacheWithClient(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func subscriberIDKey(id int64) string {
	return fmt.Sprintf("gluelink:subscriber:id:%d", id)
}

func subscriberEmailKey(email string) string {
	return fmt.Sprintf("gluelink:subscriber:email:%s", email)
}

const countsKey = "gluelink:subscriber:counts"

// GetSubscriberByID returns the cached record for id, or nil on a miss.
func (c *Cache) GetSubscriberByID(ctx context.Context, id int64) *domain.Subscriber {
	return c.getSubscriber(ctx, subscriberIDKey(id))
}

// GetSubscriberByEmail returns the cached record for email, or nil on a miss.
func (c *Cache) GetSubscriberByEmail(ctx context.Context, email string) *domain.Subscriber {
	return c.getSubscriber(ctx, subscriberEmailKey(email))
}

func (c *Cache) getSubscriber(ctx context.Context, key string) *domain.Subscriber {
	if c == nil {
		return nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("subscriber cache read failed", "error", err, "key", key)
		}
		return nil
	}

	var sub domain.Subscriber
	if err := json.Unmarshal(data, &sub); err != nil {
		c.logger.Warn("subscriber cache entry corrupt", "error", err, "key", key)
		return nil
	}
	return &sub
}

// SetSubscriber caches a record under both its id and email keys.
func (c *Cache) SetSubscriber(ctx context.Context, sub *domain.Subscriber) {
	if c == nil || sub == nil {
		return
	}

	data, err := json.Marshal(sub)
	if err != nil {
		c.logger.Warn("subscriber cache encode failed", "error", err, "id", sub.ID)
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, subscriberIDKey(sub.ID), data, 0)
	pipe.Set(ctx, subscriberEmailKey(sub.Email), data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("subscriber cache write failed", "error", err, "id", sub.ID)
	}
}

// InvalidateSubscriber drops the id and email entries for a record along
// with the aggregate status counts. Callers pass every email the record
// has been stored under when an update changes the address.
func (c *Cache) InvalidateSubscriber(ctx context.Context, id int64, emails ...string) {
	if c == nil {
		return
	}

	keys := []string{subscriberIDKey(id), countsKey}
	for _, email := range emails {
		if email != "" {
			keys = append(keys, subscriberEmailKey(email))
		}
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("subscriber cache invalidation failed", "error", err, "id", id)
	}
}

// GetCounts returns the cached status counts, or nil on a miss.
func (c *Cache) GetCounts(ctx context.Context) map[string]int {
	if c == nil {
		return nil
	}

	data, err := c.client.Get(ctx, countsKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("counts cache read failed", "error", err)
		}
		return nil
	}

	var counts map[string]int
	if err := json.Unmarshal(data, &counts); err != nil {
		c.logger.Warn("counts cache entry corrupt", "error", err)
		return nil
	}
	return counts
}

// SetCounts caches the status counts with a short expiry.
func (c *Cache) SetCounts(ctx context.Context, counts map[string]int) {
	if c == nil {
		return
	}

	data, err := json.Marshal(counts)
	if err != nil {
		c.logger.Warn("counts cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, countsKey, data, countsTTL).Err(); err != nil {
		c.logger.Warn("counts cache write failed", "error", err)
	}
}
