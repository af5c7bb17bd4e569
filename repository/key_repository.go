package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyRepository persists the per-user checkout attempt key so it stays
// stable across the HTTP requests of a single attempt.
type KeyRepository interface {
	Get(ctx context.Context, userID string) (string, error)
	Set(ctx context.Context, userID, key string, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

// RedisKeyRepository implements KeyRepository on go-redis.
type RedisKeyRepository struct {
	client *redis.Client
}

// NewRedisKeyRepository creates a new RedisKeyRepository.
func NewRedisKeyRepository(client *redis.Client) KeyRepository {
	return &RedisKeyRepository{client: client}
}

func attemptKeyKey(userID string) string {
	return fmt.Sprintf("checkout:key:%s", userID)
}

// Get returns the stored key, or "" when none exists.
func (r *RedisKeyRepository) Get(ctx context.Context, userID string) (string, error) {
	val, err := r.client.Get(ctx, attemptKeyKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores the key with a TTL matching the attempt timeout window.
func (r *RedisKeyRepository) Set(ctx context.Context, userID, key string, ttl time.Duration) error {
	return r.client.Set(ctx, attemptKeyKey(userID), key, ttl).Err()
}

// Delete removes the stored key.
func (r *RedisKeyRepository) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, attemptKeyKey(userID)).Err()
}
