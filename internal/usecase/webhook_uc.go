// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookUseCase interface {
	// Handle verifies, parses and reconciles one delivery. Only signature and
	// payload problems and storage failures are returned as errors; unknown
	// types and unknown businesses are outcomes so the provider gets a 2xx.
	Handle(ctx context.Context, provider string, payload []byte, headers map[string]string) (Outcome, error)
}

type webhookUC struct {
	businesses repository.BusinessRepository
	providers  adapter.ProviderSet
	subs       *SubscriptionUseCase
	dedup      adapter.EventDeduper
	log        *zerolog.Logger
}

// NewWebhookUseCase accepts a nil dedup; duplicates are then absorbed by the
// idempotent transitions alone.
func NewWebhookUseCase(businesses repository.BusinessRepository, providers adapter.ProviderSet, subs *SubscriptionUseCase, dedup adapter.EventDeduper, logger *zerolog.Logger) *webhookUC {
	return &webhookUC{businesses: businesses, providers: providers, subs: subs, dedup: dedup, log: orNopLogger(logger)}
}

func (uc *webhookUC) Handle(ctx context.Context, provider string, payload []byte, headers map[string]string) (out Outcome, err error) {
	start := time.Now()
	kind := model.ProviderKind(provider)
	ctx = logging.WithProvider(ctx, provider)
	lg := logging.With(ctx, uc.log)

	defer func() {
		metrics.ObserveWebhook(provider, time.Since(start))
		if err != nil {
			metrics.IncWebhook(provider, "rejected")
			return
		}
		metrics.IncWebhook(provider, string(out))
	}()

	parser, ok := uc.providers.Parser(kind)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	ev, err := parser.ParseEvent(ctx, payload, headers)
	if err != nil {
		lg.Warn().Err(err).Msg("webhook rejected")
		return "", err
	}
	evLog := lg.With().
		Str("event_id", ev.EventID).
		Str("event_type", string(ev.Type)).
		Str("subscription_id", ev.SubscriptionID).
		Str("transaction_id", ev.TransactionID).
		Logger()

	if !ev.Type.Known() {
		evLog.Info().Msg("webhook event type ignored")
		return OutcomeIgnored, nil
	}

	if ev.EventID != "" && uc.dedup != nil {
		token, claimed, cerr := uc.dedup.Claim(ctx, provider, ev.EventID)
		switch {
		case cerr != nil:
			evLog.Warn().Err(cerr).Msg("webhook dedup unavailable, processing anyway")
		case !claimed:
			evLog.Info().Msg("duplicate webhook delivery")
			return OutcomeDuplicate, nil
		default:
			defer func() {
				if err != nil {
					// let the provider's retry through
					_ = uc.dedup.Release(context.WithoutCancel(ctx), provider, ev.EventID, token)
				}
			}()
		}
	}

	b, err := uc.lookup(ctx, kind, ev)
	if errors.Is(err, domain.ErrNotFound) {
		evLog.Warn().Msg("webhook for unknown business dropped")
		return OutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	ctx = logging.WithBusinessID(ctx, b.ID)
	out, err = uc.subs.ApplyEvent(ctx, b, ev)
	if err != nil {
		evLog.Error().Err(err).Str("business_id", b.ID).Msg("webhook processing failed")
		return "", err
	}
	evLog.Info().Str("business_id", b.ID).Str("outcome", string(out)).Str("status", string(b.Status)).Msg("webhook processed")
	return out, nil
}

// lookup joins on provider identifiers only.
func (uc *webhookUC) lookup(ctx context.Context, kind model.ProviderKind, ev *model.ProviderEvent) (*model.Business, error) {
	if ev.SubscriptionID != "" {
		b, err := uc.businesses.FindBySubscriptionID(ctx, repository.NoTX, kind, ev.SubscriptionID)
		if !errors.Is(err, domain.ErrNotFound) {
			return b, err
		}
	}
	if ev.TransactionID != "" {
		return uc.businesses.FindByTransactionID(ctx, repository.NoTX, ev.TransactionID)
	}
	return nil, domain.ErrNotFound
}
