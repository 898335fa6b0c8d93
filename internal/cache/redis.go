package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quickcourt/auth/pkg/config"
	"github.com/quickcourt/auth/pkg/logger"
)

type Client struct {
	rdb *redis.Client
}

func New(cfg config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get and Set satisfy middleware.IdempotencyStore.

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Allow implements a fixed-window counter per key. The first hit in a window
// creates the counter with the window as TTL; later hits just increment it.
// This guards the HTTP surface against hammering; the per-phone issuance
// limit lives in the OTP store and is separate.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// Hash the key so raw IPs and phone numbers never land in Redis.
	hasher := sha256.New()
	hasher.Write([]byte(key))
	counterKey := fmt.Sprintf("rate_limit:%x", hasher.Sum(nil))

	count, err := c.rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, counterKey, window).Err(); err != nil {
			logger.WarnContext(ctx, "Failed to set rate limit window TTL", "error", err)
		}
	}

	return count <= int64(limit), nil
}
