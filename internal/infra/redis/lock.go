// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"directory-billing/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// EventClaims marks webhook deliveries as seen. A claim is a SETNX key owned
// by a random token; Release drops it only if the token still matches, so a
// failed delivery can be retried by the provider.
type EventClaims struct {
	cli *redis.Client
	ttl time.Duration
}

func NewEventClaims(c *Client, ttl time.Duration) *EventClaims {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EventClaims{cli: c.cli, ttl: ttl}
}

func EventKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}

// Claim returns ok=false when the event was already claimed.
func (e *EventClaims) Claim(ctx context.Context, provider, eventID string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = e.cli.SetNX(ctx, EventKey(provider, eventID), token, e.ttl).Result()
	if err != nil {
		metrics.ObserveCache(metrics.CacheWebhookClaim, metrics.CacheUnavailable)
		return "", false, err
	}
	if !ok {
		metrics.ObserveCache(metrics.CacheWebhookClaim, metrics.CacheHit)
		return "", false, nil
	}
	metrics.ObserveCache(metrics.CacheWebhookClaim, metrics.CacheMiss)
	return token, true, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (e *EventClaims) Release(ctx context.Context, provider, eventID, token string) error {
	_, err := luaUnlock.Run(ctx, e.cli, []string{EventKey(provider, eventID)}, token).Result()
	return err
}
