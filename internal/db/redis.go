package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("redis not ready")

// ConnectRedis parses a redis:// URL and waits for the server to answer a ping.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	for range connectAttempts {
		client := redis.NewClient(opts)

		err = client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisUnavailable, ctx.Err())
		case <-time.After(connectInterval):
		}
	}

	return nil, errors.Join(ErrRedisUnavailable, err)
}

func RedisHealthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		err := client.Ping(ctx).Err()
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}
