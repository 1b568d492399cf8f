package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/seatline/internal/ports"
)

// ─── Redis-backed availability snapshots ────────────────────

const (
	availabilityKeyPrefix  = "avail:"
	DefaultAvailabilityTTL = 30 * time.Second
)

// AvailabilityCache stores availability snapshots in one Redis hash per
// service. Each field is a query window (e.g. "all" or "from:to"), so a
// single DEL drops every snapshot of the service.
type AvailabilityCache struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ ports.AvailabilityCache = (*AvailabilityCache)(nil)

// NewAvailabilityCache creates a cache whose entries expire after ttl.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &AvailabilityCache{redis: client, ttl: ttl}
}

func availabilityKey(serviceID uuid.UUID) string {
	return availabilityKeyPrefix + serviceID.String()
}

// Get decodes the cached field into dst. A miss returns false with no error.
func (c *AvailabilityCache) Get(ctx context.Context, serviceID uuid.UUID, field string, dst any) (bool, error) {
	raw, err := c.redis.HGet(ctx, availabilityKey(serviceID), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("availability cache get: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("availability cache decode: %w", err)
	}
	return true, nil
}

// Set stores v under field and refreshes the hash TTL.
func (c *AvailabilityCache) Set(ctx context.Context, serviceID uuid.UUID, field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("availability cache encode: %w", err)
	}

	key := availabilityKey(serviceID)
	pipe := c.redis.Pipeline()
	pipe.HSet(ctx, key, field, string(raw))
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("availability cache set: %w", err)
	}
	return nil
}

// Invalidate drops every snapshot of the service. Call it after any booking
// or cancellation commits.
func (c *AvailabilityCache) Invalidate(ctx context.Context, serviceID uuid.UUID) error {
	if err := c.redis.Del(ctx, availabilityKey(serviceID)).Err(); err != nil {
		return fmt.Errorf("availability cache invalidate: %w", err)
	}
	return nil
}
