package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"directory-billing/internal/config"
	"directory-billing/internal/domain/ports/adapter"
	payAdapters "directory-billing/internal/infra/adapters/payment"
	pg "directory-billing/internal/infra/db/postgres"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/notify"
	red "directory-billing/internal/infra/redis"
	"directory-billing/internal/infra/security"
	"directory-billing/internal/infra/worker"
	"directory-billing/internal/usecase"
)

// app holds the process-wide dependencies shared by serve and reconcile.
type app struct {
	cfg    *config.Config
	log    *zerolog.Logger
	pool   *pgxpool.Pool
	redis  *red.Client
	claims adapter.EventDeduper

	registry *payAdapters.Registry
	notifier adapter.Notifier
	workers  *worker.Pool

	subs     *usecase.SubscriptionUseCase
	vaults   usecase.VaultUseCase
	charges  usecase.ChargeUseCase
	plans    usecase.PlanUseCase
	webhooks usecase.WebhookUseCase
}

func loadConfig(g *globalFlags) (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(g.configPath, g.dev)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, logging.New(cfg.Log, cfg.Runtime.Dev), nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	var sealer pg.Sealer
	if cfg.Security.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			pool.Close()
			_ = rc.Close()
			return nil, fmt.Errorf("encryption: %w", err)
		}
		sealer = enc
	} else {
		logger.Warn().Msg("security.encryption_key not set; raw provider responses are stored unencrypted")
	}

	sender, err := notify.New(cfg.Notify, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier unavailable; notifications go to the log")
		sender = notify.NewNoopNotifier(logger)
	}
	workers := worker.NewPool(2, 64, logger)
	workers.Start(context.WithoutCancel(ctx))
	notifier := notify.NewAsync(sender, workers, logger)

	businesses := pg.NewBusinessRepo(pool)
	records := pg.NewSubscriptionRepo(pool)
	history := pg.NewHistoryRepo(pool, sealer)
	discounts := pg.NewDiscountRepoCacheDecorator(pg.NewDiscountRepo(pool), rc)
	tm := pg.NewTxManager(pool)

	registry := payAdapters.NewRegistry(cfg.Payment, cfg.Webhook, logger)
	claims := red.NewEventClaims(rc, cfg.Webhook.DedupTTL)

	subs := usecase.NewSubscriptionUseCase(businesses, records, history, tm, registry, notifier, logger)
	charges := usecase.NewChargeUseCase(businesses, history, discounts, tm, registry, subs, notifier, cfg.Payment.Currency, logger)

	return &app{
		cfg:      cfg,
		log:      logger,
		pool:     pool,
		redis:    rc,
		claims:   claims,
		registry: registry,
		notifier: notifier,
		workers:  workers,
		subs:     subs,
		vaults:   usecase.NewVaultUseCase(businesses, history, registry, notifier, logger),
		charges:  charges,
		plans:    usecase.NewPlanUseCase(businesses, charges, subs, logger),
		webhooks: usecase.NewWebhookUseCase(businesses, registry, subs, claims, logger),
	}, nil
}

func (a *app) Close() {
	if a.workers != nil {
		a.workers.Stop()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
