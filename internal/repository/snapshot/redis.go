package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-checkout/internal/domain"
)

type redisRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis stores snapshots as JSON strings. ttl <= 0 keeps them forever.
func NewRedis(client *redis.Client, ttl time.Duration) Repository {
	return &redisRepo{client: client, ttl: ttl}
}

func (r *redisRepo) Load(ctx context.Context, key string) ([]domain.CartItem, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var items []domain.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return items, nil
}

func (r *redisRepo) Save(ctx context.Context, key string, items []domain.CartItem) error {
	if items == nil {
		items = []domain.CartItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *redisRepo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
