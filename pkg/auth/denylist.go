package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Denylist records revoked token ids
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisDenylist stores revocations as expiring Redis keys
type RedisDenylist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisDenylist creates a Redis-backed denylist
func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "tablekeep:revoked:"
	}
	return &RedisDenylist{client: client, prefix: prefix, now: time.Now}
}

// Revoke marks tokenID revoked until the token would have expired anyway
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryDenylist keeps revocations in process memory. It is used when Redis
// is not configured and only covers a single instance.
type MemoryDenylist struct {
	cache *expirable.LRU[string, struct{}]
	ttl   time.Duration
}

// NewMemoryDenylist creates an in-memory denylist holding at most size
// entries, each kept for ttl (normally the token lifetime).
func NewMemoryDenylist(size int, ttl time.Duration) *MemoryDenylist {
	return &MemoryDenylist{cache: expirable.NewLRU[string, struct{}](size, nil, ttl), ttl: ttl}
}

// Revoke marks tokenID revoked
func (d *MemoryDenylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if !until.After(time.Now()) {
		return nil
	}
	d.cache.Add(tokenID, struct{}{})
	return nil
}

// IsRevoked reports whether tokenID has been revoked
func (d *MemoryDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	return d.cache.Contains(tokenID), nil
}
