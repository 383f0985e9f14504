package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection with a
// round-trip write, read, and delete
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	testKey := "connection_test"
	testValue := time.Now().UTC().Format(time.RFC3339Nano)
	if err := client.Set(ctx, testKey, testValue, 10*time.Second).Err(); err != nil {
		return nil, fmt.Errorf("failed to write to redis: %w", err)
	}

	retrieved, err := client.Get(ctx, testKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}
	if retrieved != testValue {
		return nil, fmt.Errorf("redis connection test value mismatch")
	}

	client.Del(ctx, testKey)

	return client, nil
}
