package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown suppresses repeat notifications. Acquire reports whether key may
// fire now and, if so, blocks it for ttl.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// CooldownKey identifies a (subscription, action) pair.
func CooldownKey(subscriptionID int64, action string) string {
	return fmt.Sprintf("farewatch:cooldown:%d:%s", subscriptionID, action)
}

// RedisCooldown shares cooldowns between processes through SETNX.
type RedisCooldown struct {
	client redis.UniversalClient
}

// NewRedisCooldown wraps an existing client.
func NewRedisCooldown(client redis.UniversalClient) *RedisCooldown {
	return &RedisCooldown{client: client}
}

// Acquire implements Cooldown.
func (c *RedisCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	ok, err := c.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// MemoryCooldown is the single-process fallback.
type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryCooldown constructs an empty MemoryCooldown. now may be nil.
func NewMemoryCooldown(now func() time.Time) *MemoryCooldown {
	if now == nil {
		now = time.Now
	}
	return &MemoryCooldown{until: make(map[string]time.Time), now: now}
}

// Acquire implements Cooldown.
func (c *MemoryCooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false, nil
	}
	c.until[key] = now.Add(ttl)
	return true, nil
}

var (
	_ Cooldown = (*RedisCooldown)(nil)
	_ Cooldown = (*MemoryCooldown)(nil)
)
