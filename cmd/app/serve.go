package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"directory-billing/internal/infra/api"
	"directory-billing/internal/infra/metrics"
	red "directory-billing/internal/infra/redis"
	"directory-billing/internal/infra/sched"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payment API and webhook receiver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.HTTP.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics.MustRegister()
			metrics.SetBuildInfo(Version, Commit, cfg.Env)

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := api.NewServer(api.Services{
				Vaults:        a.vaults,
				Charges:       a.charges,
				Plans:         a.plans,
				Webhooks:      a.webhooks,
				Subscriptions: a.subs,
			},
				api.NewAuthManager(cfg.API.JWTSecret, 0),
				red.NewRateLimiter(a.redis),
				red.NewIdempotencyCache(a.redis, cfg.API.IdempotencyTTL),
				cfg.API,
				cfg.HTTP.RequestTimeout,
				logger,
			)
			srv.AddHealthCheck("postgres", func(ctx context.Context) error { return a.pool.Ping(ctx) })
			srv.AddHealthCheck("redis", a.redis.Ping)

			go reportPoolStats(ctx, a)
			if cfg.Reconcile.Interval > 0 {
				w := sched.NewDriftReconciler(a.subs, cfg.Reconcile.BatchSize, cfg.Reconcile.Interval, logger)
				go w.Start(ctx)
			}

			logger.Info().
				Str("env", cfg.Env).
				Str("provider", string(a.registry.Active().Kind())).
				Bool("live", a.registry.Active().Live()).
				Int("port", cfg.HTTP.Port).
				Msg("directory-billing starting")
			return srv.Start(ctx, fmt.Sprintf(":%d", cfg.HTTP.Port))
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override http.port")
	return cmd
}

func reportPoolStats(ctx context.Context, a *app) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := a.pool.Stat()
			metrics.SetDBPoolStats(metrics.PoolStats{
				Max:           s.MaxConns(),
				Total:         s.TotalConns(),
				Idle:          s.IdleConns(),
				InUse:         s.AcquiredConns(),
				EmptyAcquires: s.EmptyAcquireCount(),
			})
		}
	}
}
