package adapter

import "context"

// EventDeduper claims webhook deliveries by event id. A claim that is not
// released suppresses redeliveries until it expires.
type EventDeduper interface {
	Claim(ctx context.Context, provider, eventID string) (token string, ok bool, err error)
	Release(ctx context.Context, provider, eventID, token string) error
}
