package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DriftFixer rewrites business status columns that disagree with their
// subscription record.
type DriftFixer interface {
	ReconcileDrift(ctx context.Context, batch int) (int, error)
}

// DriftReconciler periodically scans for businesses whose denormalized status
// drifted from the subscription record. This covers crashes between the two
// writes and manual edits to either table.
type DriftReconciler struct {
	uc       DriftFixer
	batch    int
	interval time.Duration
	log      *zerolog.Logger
}

func NewDriftReconciler(uc DriftFixer, batch int, interval time.Duration, logger *zerolog.Logger) *DriftReconciler {
	if batch <= 0 {
		batch = 200
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &DriftReconciler{uc: uc, batch: batch, interval: interval, log: logger}
}

func (w *DriftReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce drains drifted rows a batch at a time until a scan fixes fewer rows
// than the batch size.
func (w *DriftReconciler) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.uc.ReconcileDrift(ctx, w.batch)
		total += n
		if err != nil {
			w.log.Error().Err(err).Int("fixed", total).Msg("drift-reconciler: scan failed")
			return total, err
		}
		if n < w.batch {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("fixed", total).Msg("drift-reconciler: pass complete")
	}
	return total, nil
}
