package repository

import (
	"context"
	"fmt"
	"time"

	"crewclock/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisAckRepository persists alert acknowledgements in Redis. A long
// TTL bounds storage; after it lapses the entry has aged out of every
// report range anyway.
type RedisAckRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisAckRepository(client *redis.Client, ttl time.Duration) *RedisAckRepository {
	return &RedisAckRepository{
		client: client,
		ttl:    ttl,
	}
}

func ackKey(alertID string) string {
	return fmt.Sprintf("alert_ack:%s", alertID)
}

// Acknowledge records the acknowledgement time for an alert
// fingerprint. Re-acknowledging keeps the original timestamp.
func (r *RedisAckRepository) Acknowledge(ctx context.Context, alertID string, at time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.SetNX(ctx, ackKey(alertID), at.Format(time.RFC3339Nano), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set ack in redis: %w", err)
	}
	return nil
}

// AcknowledgedAt returns when the alert was acknowledged, or nil.
func (r *RedisAckRepository) AcknowledgedAt(ctx context.Context, alertID string) (*time.Time, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, ackKey(alertID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ack from redis: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ack timestamp: %w", err)
	}
	return &at, nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
