package compliance

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "tranche/internal/platform/redis"
	"tranche/pkg/domain"
)

const (
	eligibleKeyPrefix = "compliance:eligible:"
	blockedKeyPrefix  = "compliance:blocked:"
)

// CachedRegistry decorates a Registry with a Redis read-through cache. A
// shared cache lets multiple service instances agree on holder status without
// hammering the upstream registry; the TTL bounds how stale an approval-time
// check can be.
type CachedRegistry struct {
	upstream Registry
	client   *platformredis.Client
	ttl      time.Duration
}

func NewCachedRegistry(upstream Registry, client *platformredis.Client, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{upstream: upstream, client: client, ttl: ttl}
}

func (c *CachedRegistry) IsEligible(ctx context.Context, account domain.Address) (bool, error) {
	return c.lookup(ctx, eligibleKeyPrefix+account.String(), func() (bool, error) {
		return c.upstream.IsEligible(ctx, account)
	})
}

func (c *CachedRegistry) IsBlocked(ctx context.Context, account domain.Address) (bool, error) {
	return c.lookup(ctx, blockedKeyPrefix+account.String(), func() (bool, error) {
		return c.upstream.IsBlocked(ctx, account)
	})
}

// Invalidate drops cached status after a registry mutation so the next check
// sees the new state immediately.
func (c *CachedRegistry) Invalidate(ctx context.Context, account domain.Address) error {
	return c.client.Del(ctx, eligibleKeyPrefix+account.String(), blockedKeyPrefix+account.String()).Err()
}

// MutableRegistry is a Registry whose holder statuses can be changed.
type MutableRegistry interface {
	Registry
	SetEligible(ctx context.Context, account domain.Address, eligible bool) error
	SetBlocked(ctx context.Context, account domain.Address, blocked bool) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, account domain.Address) error
}

// InvalidatingRegistry applies status writes to the primary store, then drops
// the cached entry so the change is visible before the TTL runs out. Reads go
// straight to the primary store.
type InvalidatingRegistry struct {
	store MutableRegistry
	cache cacheInvalidator
}

func NewInvalidatingRegistry(store MutableRegistry, cache cacheInvalidator) *InvalidatingRegistry {
	return &InvalidatingRegistry{store: store, cache: cache}
}

func (r *InvalidatingRegistry) IsEligible(ctx context.Context, account domain.Address) (bool, error) {
	return r.store.IsEligible(ctx, account)
}

func (r *InvalidatingRegistry) IsBlocked(ctx context.Context, account domain.Address) (bool, error) {
	return r.store.IsBlocked(ctx, account)
}

func (r *InvalidatingRegistry) SetEligible(ctx context.Context, account domain.Address, eligible bool) error {
	if err := r.store.SetEligible(ctx, account, eligible); err != nil {
		return err
	}
	return r.cache.Invalidate(ctx, account)
}

func (r *InvalidatingRegistry) SetBlocked(ctx context.Context, account domain.Address, blocked bool) error {
	if err := r.store.SetBlocked(ctx, account, blocked); err != nil {
		return err
	}
	return r.cache.Invalidate(ctx, account)
}

func (c *CachedRegistry) lookup(ctx context.Context, key string, load func() (bool, error)) (bool, error) {
	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return cached == "1", nil
	}
	if err != redis.Nil {
		// Cache trouble must not block compliance checks; fall through to the
		// upstream registry.
		return load()
	}

	value, err := load()
	if err != nil {
		return false, err
	}
	marker := "0"
	if value {
		marker = "1"
	}
	_ = c.client.Set(ctx, key, marker, c.ttl).Err()
	return value, nil
}
