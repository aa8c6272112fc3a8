// Package cache provides Redis-backed stores for signal deduplication and
// daily send counters, so caps and dedup survive process restarts. The filter
// falls back to its in-memory implementations when Redis is disabled.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout
const (
	// DedupKeyPrefix namespaces signal fingerprints
	// Format: signals:dedup:{fingerprint}
	DedupKeyPrefix = "signals:dedup"

	// DailyCounterKeyPrefix namespaces the per-day send counter
	// Format: signals:sent:{YYYY-MM-DD}
	DailyCounterKeyPrefix = "signals:sent"
)

// Config holds Redis connection settings
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewClient connects to Redis and verifies the connection
func NewClient(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisDedup implements filter.DedupStore on Redis using SET NX with TTL
type RedisDedup struct {
	client *redis.Client
}

// NewRedisDedup creates a dedup store over an existing client
func NewRedisDedup(client *redis.Client) *RedisDedup {
	return &RedisDedup{client: client}
}

// Seen reports whether a fingerprint is already recorded, without writing
func (d *RedisDedup) Seen(ctx context.Context, fingerprint string) (bool, error) {
	key := fmt.Sprintf("%s:%s", DedupKeyPrefix, fingerprint)
	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup EXISTS failed: %w", err)
	}
	return n > 0, nil
}

// MarkSent records a fingerprint; the SET NX result distinguishes a fresh
// record from a duplicate inside the TTL window
func (d *RedisDedup) MarkSent(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s:%s", DedupKeyPrefix, fingerprint)
	ok, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX failed: %w", err)
	}
	return ok, nil
}

// RedisCounter implements filter.DailyCounter on Redis. The key embeds the
// UTC date so stale counters age out on their own.
type RedisCounter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCounter creates a daily counter over an existing client
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, now: time.Now}
}

func (c *RedisCounter) key() string {
	return fmt.Sprintf("%s:%s", DailyCounterKeyPrefix, c.now().UTC().Format("2006-01-02"))
}

// SentToday returns the number of signals sent in the current UTC day
func (c *RedisCounter) SentToday(ctx context.Context) (int, error) {
	n, err := c.client.Get(ctx, c.key()).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("daily counter GET failed: %w", err)
	}
	return n, nil
}

// Add increments the counter, keeping a 48h expiry so old keys disappear
func (c *RedisCounter) Add(ctx context.Context, n int) error {
	key := c.key()
	pipe := c.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("daily counter INCR failed: %w", err)
	}
	return nil
}

// Reset clears the current day's counter
func (c *RedisCounter) Reset(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key()).Err(); err != nil {
		return fmt.Errorf("daily counter DEL failed: %w", err)
	}
	return nil
}
