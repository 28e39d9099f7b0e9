// Package pubsub provides the Redis-backed alert transport: a stream
// for downstream consumers (bots, dashboards) plus TTL keys for alert
// cooldowns shared across dispatcher instances.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/logger"
)

// Publisher is the alert transport used by the notification dispatcher.
type Publisher interface {
	// PublishToStream appends a JSON-serialized value to a stream.
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error

	// SetCooldown arms a cooldown key with the given TTL.
	SetCooldown(ctx context.Context, key string, ttl time.Duration) error

	// IsOnCooldown reports whether the cooldown key is still armed.
	IsOnCooldown(ctx context.Context, key string) (bool, error)

	// Close releases the underlying connection.
	Close() error
}

// RedisClient implements Publisher on a Redis connection.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)

	return &RedisClient{client: rdb}, nil
}

// PublishToStream publishes a message to a Redis stream
func (r *RedisClient) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			key: string(jsonData),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return nil
}

// SetCooldown arms a cooldown key. The value is irrelevant; only the
// key's existence is checked.
func (r *RedisClient) SetCooldown(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown %s: %w", key, err)
	}
	return nil
}

// IsOnCooldown reports whether the cooldown key exists.
func (r *RedisClient) IsOnCooldown(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown %s: %w", key, err)
	}
	return n > 0, nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
