package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/redis/go-redis/v9"
)

const checkoutKeyPrefix = "checkout:"

// NewRedisClient connects to the Redis instance at url and checks it answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// CheckoutRepository keeps pending checkout intents in Redis until they are
// confirmed or expire. Nothing here is an entitlement.
type CheckoutRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCheckoutRepository(client *redis.Client, ttl time.Duration) *CheckoutRepository {
	return &CheckoutRepository{client: client, ttl: ttl}
}

func (r *CheckoutRepository) SaveIntent(ctx context.Context, intent *domain.CheckoutIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode checkout intent: %w", err)
	}
	if err := r.client.Set(ctx, checkoutKeyPrefix+intent.OrderID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkout intent: %w", err)
	}
	return nil
}

// GetIntent returns (nil, nil) when the order is unknown or its intent expired.
func (r *CheckoutRepository) GetIntent(ctx context.Context, orderID string) (*domain.CheckoutIntent, error) {
	data, err := r.client.Get(ctx, checkoutKeyPrefix+orderID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkout intent: %w", err)
	}
	var intent domain.CheckoutIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode checkout intent: %w", err)
	}
	return &intent, nil
}

func (r *CheckoutRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
