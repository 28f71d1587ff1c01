package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"modeld/internal/config"
)

// RedisBus publishes events with Redis PUBLISH, one Redis channel per topic.
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus connects to Redis and verifies the connection with a ping.
func NewRedisBus(cfg config.RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis bus ping: %w", err)
	}
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
