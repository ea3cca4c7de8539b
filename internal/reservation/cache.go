package reservation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps short-lived availability snapshots in Redis. Availability is
// already a best-effort read, so a slightly stale cached value changes
// nothing about the contract.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

func availabilityKey(item string) string {
	return "reservation:availability:" + item
}

// GetAvailability returns a cached snapshot, if any.
func (c *Cache) GetAvailability(ctx context.Context, item string) (Availability, bool) {
	if c == nil || c.client == nil {
		return Availability{}, false
	}
	raw, err := c.client.Get(ctx, availabilityKey(item)).Bytes()
	if err != nil {
		return Availability{}, false
	}
	var av Availability
	if err := json.Unmarshal(raw, &av); err != nil {
		return Availability{}, false
	}
	return av, true
}

// SetAvailability stores a snapshot with the configured TTL.
func (c *Cache) SetAvailability(ctx context.Context, av Availability) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(av)
	if err != nil {
		return
	}
	c.client.Set(ctx, availabilityKey(av.Item), raw, c.ttl)
}

// Invalidate drops the snapshot after a reservation write.
func (c *Cache) Invalidate(ctx context.Context, item string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, availabilityKey(item))
}
