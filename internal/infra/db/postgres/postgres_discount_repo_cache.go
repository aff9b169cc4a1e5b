package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/metrics"
	red "directory-billing/internal/infra/redis"
)

var _ repository.DiscountRepository = (*discountRepoCacheDecorator)(nil)

// discountRepoCacheDecorator caches discount lookups for a short TTL.
// Redeem always goes to the database and invalidates the cached entry, so a
// stale redemption count can only make a code look usable, never skip the
// conditional increment.
type discountRepoCacheDecorator struct {
	inner repository.DiscountRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewDiscountRepoCacheDecorator(inner repository.DiscountRepository, cache red.RedisClient) repository.DiscountRepository {
	return &discountRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   time.Minute,
	}
}

func discountKey(ref string) string {
	return fmt.Sprintf("discount:%s", strings.ToLower(ref))
}

func (d *discountRepoCacheDecorator) FindByRef(ctx context.Context, tx repository.Tx, ref string) (*model.Discount, error) {
	// a transactional read wants the row lock, not the cache
	if tx != nil {
		return d.inner.FindByRef(ctx, tx, ref)
	}
	key := discountKey(ref)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var disc model.Discount
		if json.Unmarshal([]byte(val), &disc) == nil {
			metrics.ObserveCache(metrics.CacheDiscount, metrics.CacheHit)
			return &disc, nil
		}
		metrics.ObserveCache(metrics.CacheDiscount, metrics.CacheMiss)
	case errors.Is(err, red.ErrNil):
		metrics.ObserveCache(metrics.CacheDiscount, metrics.CacheMiss)
	default:
		metrics.ObserveCache(metrics.CacheDiscount, metrics.CacheUnavailable)
	}

	disc, err := d.inner.FindByRef(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(disc); err == nil {
		_ = d.cache.Set(ctx, discountKey(disc.ID), b, d.ttl)
		_ = d.cache.Set(ctx, discountKey(disc.Code), b, d.ttl)
	}
	return disc, nil
}

func (d *discountRepoCacheDecorator) Redeem(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	keys := []string{discountKey(id)}
	if val, err := d.cache.Get(ctx, discountKey(id)); err == nil {
		var disc model.Discount
		if json.Unmarshal([]byte(val), &disc) == nil && disc.Code != "" {
			keys = append(keys, discountKey(disc.Code))
		}
	}
	ok, err := d.inner.Redeem(ctx, tx, id)
	_ = d.cache.Del(ctx, keys...)
	return ok, err
}
