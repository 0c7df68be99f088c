package cache

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisOnce   sync.Once
	redisClient *redis.Client
	redisErr    error
)

// GetRedisClient returns a singleton Redis client backing both the event
// bus and the tenant rate/quota counters. REDIS_URL takes precedence over
// BUS_URL; either may be a redis:// URL. Falls back to localhost:6379 when
// neither is set, so local development works without a .env file.
func GetRedisClient() (*redis.Client, error) {
	redisOnce.Do(func() {
		raw := strings.TrimSpace(os.Getenv("REDIS_URL"))
		if raw == "" {
			raw = strings.TrimSpace(os.Getenv("BUS_URL"))
		}
		if raw == "" {
			raw = "redis://localhost:6379/0"
		}

		opts, err := redis.ParseURL(raw)
		if err != nil {
			redisErr = fmt.Errorf("cache: parse redis url: %w", err)
			return
		}

		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			redisErr = fmt.Errorf("cache: ping redis %s failed: %w", opts.Addr, err)
			_ = client.Close()
			return
		}

		redisClient = client
	})

	return redisClient, redisErr
}

// Enabled reports whether a usable Redis client was initialized.
func Enabled() bool {
	client, err := GetRedisClient()
	return err == nil && client != nil
}

// Close releases the cached Redis connection. Mainly useful for tests.
func Close() error {
	if redisClient == nil {
		return nil
	}
	return redisClient.Close()
}
