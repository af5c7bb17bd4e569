package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/models"

	"github.com/redis/go-redis/v9"
)

// HandoffRepository stores the transient payment hand-off slot, keyed
// by the attempt's idempotency token so concurrent or stale attempts
// cannot cross-contaminate. Slots are cleared on every resolution and
// expire on their own as a backstop.
type HandoffRepository interface {
	Write(ctx context.Context, attemptKey string, res *models.PaymentResolution, ttl time.Duration) error
	Read(ctx context.Context, attemptKey string) (*models.PaymentResolution, error)
	Clear(ctx context.Context, attemptKey string) error
}

// RedisHandoffRepository implements HandoffRepository on go-redis.
type RedisHandoffRepository struct {
	client *redis.Client
}

// NewRedisHandoffRepository creates a new RedisHandoffRepository.
func NewRedisHandoffRepository(client *redis.Client) HandoffRepository {
	return &RedisHandoffRepository{client: client}
}

func handoffKey(attemptKey string) string {
	return fmt.Sprintf("payment:handoff:%s", attemptKey)
}

// Write stores the resolution payload, stamping WrittenAt.
func (r *RedisHandoffRepository) Write(ctx context.Context, attemptKey string, res *models.PaymentResolution, ttl time.Duration) error {
	res.WrittenAt = time.Now().UTC()
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode handoff: %w", err)
	}
	return r.client.Set(ctx, handoffKey(attemptKey), data, ttl).Err()
}

// Read returns the slot contents, or nil when the slot is empty.
func (r *RedisHandoffRepository) Read(ctx context.Context, attemptKey string) (*models.PaymentResolution, error) {
	data, err := r.client.Get(ctx, handoffKey(attemptKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var res models.PaymentResolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode handoff: %w", err)
	}
	return &res, nil
}

// Clear deletes the slot.
func (r *RedisHandoffRepository) Clear(ctx context.Context, attemptKey string) error {
	return r.client.Del(ctx, handoffKey(attemptKey)).Err()
}
