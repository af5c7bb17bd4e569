package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-service/models"

	"github.com/redis/go-redis/v9"
)

// ErrCartNotFound signals the user has no cart in Redis.
var ErrCartNotFound = errors.New("cart not found")

// CartRepository reads and clears the Redis cart owned by the cart
// collaborator.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// RedisCartRepository implements CartRepository on go-redis.
type RedisCartRepository struct {
	client *redis.Client
}

// NewRedisCartRepository creates a new RedisCartRepository.
func NewRedisCartRepository(client *redis.Client) CartRepository {
	return &RedisCartRepository{client: client}
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

// Get fetches and decodes the user's cart.
func (r *RedisCartRepository) Get(ctx context.Context, userID string) (*models.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &cart, nil
}

// Clear deletes the user's cart.
func (r *RedisCartRepository) Clear(ctx context.Context, userID string) error {
	return r.client.Del(ctx, cartKey(userID)).Err()
}
