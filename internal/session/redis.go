package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

// RedisBackend stores each session as one hash; fields are session keys.
type RedisBackend struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisBackend) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	data, err := r.client.HGet(ctx, sessionKey(sessionID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) Remember(ctx context.Context, sessionID, key string, value []byte) error {
	hashKey := sessionKey(sessionID)

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, key, value)
		pipe.Expire(ctx, hashKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Forget(ctx context.Context, sessionID, key string) error {
	if err := r.client.HDel(ctx, sessionKey(sessionID), key).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
