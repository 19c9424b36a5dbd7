package webhookguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "webhook:seen:"

// Guard remembers webhook deliveries that were already applied so exact
// replays can be answered without touching the database. A nil *Guard is
// valid and remembers nothing.
type Guard struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a guard backed by redisClient
func New(redisClient *redis.Client, ttl time.Duration) *Guard {
	return &Guard{redis: redisClient, ttl: ttl}
}

// NewFromURL parses a redis URL and pings the server
func NewFromURL(ctx context.Context, redisURL string, ttl time.Duration) (*Guard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return New(client, ttl), nil
}

// Key identifies one delivery by gateway and exact payload bytes
func Key(gateway string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return keyPrefix + gateway + ":" + hex.EncodeToString(sum[:])
}

// Seen reports whether the exact delivery was already applied
func (g *Guard) Seen(ctx context.Context, gateway string, payload []byte) (bool, error) {
	if g == nil || g.redis == nil {
		return false, nil
	}
	n, err := g.redis.Exists(ctx, Key(gateway, payload)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check webhook replay: %w", err)
	}
	return n > 0, nil
}

// Remember marks the delivery as applied
func (g *Guard) Remember(ctx context.Context, gateway string, payload []byte) error {
	if g == nil || g.redis == nil {
		return nil
	}
	if err := g.redis.Set(ctx, Key(gateway, payload), "1", g.ttl).Err(); err != nil {
		return fmt.Errorf("failed to remember webhook: %w", err)
	}
	return nil
}

// Close releases the redis connection
func (g *Guard) Close() error {
	if g == nil || g.redis == nil {
		return nil
	}
	return g.redis.Close()
}
