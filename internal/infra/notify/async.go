package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/worker"
)

// Compile-time check
var _ adapter.Notifier = (*AsyncNotifier)(nil)

// AsyncNotifier hands notifications to a worker pool so a slow chat API never
// delays a payment response. Critical notifications are sent inline when the
// pool cannot take them.
type AsyncNotifier struct {
	inner adapter.Notifier
	pool  *worker.Pool
	log   *zerolog.Logger
}

func NewAsync(inner adapter.Notifier, pool *worker.Pool, logger *zerolog.Logger) *AsyncNotifier {
	return &AsyncNotifier{inner: inner, pool: pool, log: logger}
}

func (a *AsyncNotifier) Notify(ctx context.Context, n adapter.Notification) error {
	detached := context.WithoutCancel(ctx)
	err := a.pool.Submit(func(context.Context) error {
		return a.inner.Notify(detached, n)
	})
	if err == nil {
		return nil
	}
	if n.Severity == adapter.SeverityCritical && !errors.Is(err, worker.ErrStopped) {
		return a.inner.Notify(detached, n)
	}
	l := logging.With(ctx, a.log)
	l.Warn().Err(err).Str("title", n.Title).Msg("notification dropped")
	return err
}
