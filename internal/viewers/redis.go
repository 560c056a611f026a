package viewers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis-backed Tracker.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	TTL          time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisTracker shares viewer counts across replicas through TTL'd Redis keys.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(ctx context.Context, cfg RedisConfig) (*RedisTracker, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "pulsecast:viewers"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl}, nil
}

// Close releases the Redis connection pool.
func (t *RedisTracker) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

func (t *RedisTracker) key(sessionID string) string {
	return t.prefix + ":" + sessionID
}

func (t *RedisTracker) Set(ctx context.Context, sessionID string, count int) error {
	if count < 0 {
		count = 0
	}
	if err := t.client.Set(ctx, t.key(sessionID), count, t.ttl).Err(); err != nil {
		return fmt.Errorf("set viewer count: %w", err)
	}
	return nil
}

func (t *RedisTracker) Get(ctx context.Context, sessionID string) (int, bool, error) {
	value, err := t.client.Get(ctx, t.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get viewer count: %w", err)
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse viewer count %q: %w", value, err)
	}
	return count, true, nil
}

func (t *RedisTracker) Clear(ctx context.Context, sessionID string) error {
	if err := t.client.Del(ctx, t.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear viewer count: %w", err)
	}
	return nil
}

var _ Tracker = (*RedisTracker)(nil)
