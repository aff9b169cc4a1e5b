package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"directory-billing/internal/infra/metrics"
)

// ErrInFlight means a request with the same key is still being processed.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// StoredResponse is the first response produced for an idempotency key.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

const inFlight = "in_flight"

// IdempotencyCache stores responses of charge-like requests so a replay
// returns the original response without repeating the side effect.
type IdempotencyCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewIdempotencyCache(client RedisClient, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{client: client, ttl: ttl}
}

func idemKey(scope, key string) string { return "idem:" + scope + ":" + key }

// Begin reserves key. It returns the stored response when key already
// completed, ErrInFlight when it is reserved but not complete, and (nil, nil)
// when the caller now owns key and must call Complete or Abort.
func (c *IdempotencyCache) Begin(ctx context.Context, scope, key string) (*StoredResponse, error) {
	ok, err := c.client.SetNX(ctx, idemKey(scope, key), inFlight, c.ttl)
	if err != nil {
		metrics.ObserveCache(metrics.CacheIdempotency, metrics.CacheUnavailable)
		return nil, err
	}
	if ok {
		metrics.ObserveCache(metrics.CacheIdempotency, metrics.CacheMiss)
		return nil, nil
	}
	raw, err := c.client.Get(ctx, idemKey(scope, key))
	if errors.Is(err, ErrNil) || (err == nil && raw == inFlight) {
		// a key expiring between SETNX and GET is treated as still reserved
		metrics.ObserveCache(metrics.CacheIdempotency, metrics.CacheInFlight)
		return nil, ErrInFlight
	}
	if err != nil {
		metrics.ObserveCache(metrics.CacheIdempotency, metrics.CacheUnavailable)
		return nil, err
	}
	var resp StoredResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	metrics.ObserveCache(metrics.CacheIdempotency, metrics.CacheHit)
	return &resp, nil
}

func (c *IdempotencyCache) Complete(ctx context.Context, scope, key string, resp StoredResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, idemKey(scope, key), data, c.ttl)
}

// Abort frees key so the caller may retry, used when nothing irreversible happened.
func (c *IdempotencyCache) Abort(ctx context.Context, scope, key string) error {
	return c.client.Del(ctx, idemKey(scope, key))
}
