package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/suji-games/leaderboard-service/internal/config"
)

// NewClient constructs a Redis client from configuration and verifies the
// connection. The client is passed into each adapter explicitly; its
// lifecycle belongs to the caller.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return client, nil
}
