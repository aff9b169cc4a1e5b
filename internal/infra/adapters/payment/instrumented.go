// File: internal/infra/adapters/payment/instrumented.go
package payment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/metrics"
)

var _ adapter.PaymentProvider = (*instrumented)(nil)

// instrumented records latency, outcome counters and a structured log line
// around every provider call. Card data never reaches the log.
type instrumented struct {
	next adapter.PaymentProvider
	log  *zerolog.Logger
}

func Instrument(next adapter.PaymentProvider, logger *zerolog.Logger) adapter.PaymentProvider {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &instrumented{next: next, log: logger}
}

func (p *instrumented) Kind() model.ProviderKind { return p.next.Kind() }
func (p *instrumented) Live() bool               { return p.next.Live() }

func (p *instrumented) observe(ctx context.Context, op string, start time.Time) *zerolog.Event {
	kind := string(p.next.Kind())
	d := time.Since(start)
	metrics.ObserveProviderCall(kind, op, d)
	lg := logging.With(ctx, p.log)
	return lg.Debug().Str("provider", kind).Str("op", op).Dur("took", d)
}

func (p *instrumented) Charge(ctx context.Context, req adapter.ChargeRequest) (*model.ChargeResult, error) {
	start := time.Now()
	res, err := p.next.Charge(ctx, req)
	ev := p.observe(ctx, "charge", start)
	if err != nil {
		ev.Err(err).Msg("provider charge rejected")
		return nil, err
	}
	metrics.IncCharge(string(p.next.Kind()), string(res.Status))
	if res.Success {
		metrics.AddRevenue(res.Currency, res.Amount)
	}
	ev.Str("status", string(res.Status)).
		Str("code", res.ErrorCode).
		Str("transaction_id", res.TransactionID).
		Int64("amount", res.Amount).
		Bool("retryable", res.Retryable).
		Msg("provider charge")
	return res, nil
}

func (p *instrumented) CreateVault(ctx context.Context, req adapter.VaultRequest) (*model.VaultResult, error) {
	start := time.Now()
	res, err := p.next.CreateVault(ctx, req)
	return p.vault(ctx, "vault_create", start, res, err)
}

func (p *instrumented) UpdateVault(ctx context.Context, vaultID string, req adapter.VaultRequest) (*model.VaultResult, error) {
	start := time.Now()
	res, err := p.next.UpdateVault(ctx, vaultID, req)
	return p.vault(ctx, "vault_update", start, res, err)
}

func (p *instrumented) vault(ctx context.Context, op string, start time.Time, res *model.VaultResult, err error) (*model.VaultResult, error) {
	ev := p.observe(ctx, op, start)
	if err != nil {
		ev.Err(err).Msg("provider vault call rejected")
		return nil, err
	}
	metrics.IncVaultOp(string(p.next.Kind()), op, string(res.Status))
	ev.Str("status", string(res.Status)).
		Str("code", res.ErrorCode).
		Str("vault_id", res.VaultID).
		Msg("provider vault call")
	return res, nil
}

func (p *instrumented) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*model.CancelResult, error) {
	start := time.Now()
	res, err := p.next.CancelSubscription(ctx, providerSubscriptionID)
	ev := p.observe(ctx, "cancel", start)
	if err != nil {
		ev.Err(err).Msg("provider cancel rejected")
		return nil, err
	}
	ev.Bool("success", res.Success).
		Str("subscription_id", providerSubscriptionID).
		Msg("provider cancel")
	return res, nil
}
