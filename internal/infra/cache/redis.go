package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "webhook:processed:"
	DefaultTTL = 72 * time.Hour
)

// ProcessedEvents remembers processed webhook event ids in Redis. It is a
// lookaside in front of the database markers, never the source of truth.
type ProcessedEvents struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProcessedEvents(client *redis.Client, ttl time.Duration) *ProcessedEvents {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProcessedEvents{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *ProcessedEvents) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *ProcessedEvents) Remember(ctx context.Context, eventID string) error {
	return c.client.Set(ctx, keyPrefix+eventID, 1, c.ttl).Err()
}
