package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reconnect policy for the session store: up to 10 retries, backoff growing
// from 100ms and capped at 3s.
const (
	redisMaxRetries      = 10
	redisMinRetryBackoff = 100 * time.Millisecond
	redisMaxRetryBackoff = 3 * time.Second
)

// redisOptions parses url and applies the reconnect policy.
func redisOptions(url string) (*redis.Options, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("app: parse TEKAUTH_REDIS_URL: %w", err)
	}
	opts.MaxRetries = redisMaxRetries
	opts.MinRetryBackoff = redisMinRetryBackoff
	opts.MaxRetryBackoff = redisMaxRetryBackoff
	return opts, nil
}

// NewRedisClient connects to Redis and pings it once. The caller owns the
// client and must Close it.
func NewRedisClient(ctx context.Context, cfg Config, log Logger) (*redis.Client, error) {
	opts, err := redisOptions(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := PingRedis(ctx, rdb, 3*time.Second); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("app: redis unreachable: %w", err)
	}

	log.Info("redis.connected", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}

// PingRedis checks that Redis answers within timeout.
func PingRedis(parent context.Context, rdb redis.UniversalClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
