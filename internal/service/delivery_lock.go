package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryLock guards the delivery batch so only one runner executes at a
// time across all instances.
type DeliveryLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type redisDeliveryLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisDeliveryLock builds a DeliveryLock backed by a redis SETNX key.
// The TTL bounds how long a crashed runner can block the next batch.
func NewRedisDeliveryLock(client *redis.Client, key string, ttl time.Duration) DeliveryLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisDeliveryLock{client: client, key: key, ttl: ttl}
}

func (l *redisDeliveryLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

func (l *redisDeliveryLock) Release(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}
