package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/slotwatch/internal/domain"
)

// Cache keeps recently read subscriptions in Redis for /status lookups.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache; a nil client disables it.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached subscription, or nil on a miss.
func (c *Cache) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached subscription: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decode cached subscription: %w", err)
	}

	return &sub, nil
}

// Set stores sub for the cache TTL.
func (c *Cache) Set(ctx context.Context, sub *domain.Subscription) error {
	if c == nil || c.client == nil || sub == nil {
		return nil
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode subscription for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(sub.UserID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached subscription: %w", err)
	}

	return nil
}

// Invalidate drops the cached entry for userID.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete cached subscription: %w", err)
	}

	return nil
}

func cacheKey(userID string) string {
	return "subscription:" + userID
}
