package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is a read-through cache for single products. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*Product, error)
	Set(ctx context.Context, p *Product) error
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func cacheKey(id uuid.UUID) string {
	return "product:" + id.String()
}

func (c *redisCache) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: failed to get product %s: %w", id, err)
	}

	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("cache: corrupt entry for product %s: %w", id, err)
	}

	return &p, nil
}

func (c *redisCache) Set(ctx context.Context, p *Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: failed to encode product %s: %w", p.ID, err)
	}
	if err := c.client.Set(ctx, cacheKey(p.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set product %s: %w", p.ID, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cacheKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete products: %w", err)
	}
	return nil
}

type nopCache struct{}

// NewNopCache returns a Cache that never stores anything.
func NewNopCache() Cache {
	return nopCache{}
}

func (nopCache) Get(context.Context, uuid.UUID) (*Product, error) { return nil, nil }
func (nopCache) Set(context.Context, *Product) error              { return nil }
func (nopCache) Delete(context.Context, ...uuid.UUID) error       { return nil }
