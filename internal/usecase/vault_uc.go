// File: internal/usecase/vault_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/logging"
)

// Compile-time check
var _ VaultUseCase = (*vaultUC)(nil)

type VaultUseCase interface {
	// EnsureVault stores card at the provider: it replaces the card behind an
	// existing vault or creates a new one and records it on the business.
	EnsureVault(ctx context.Context, businessID string, card model.Card, billing model.BillingInfo) (string, error)
	// UpdatePaymentMethod replaces the card behind the business's vault.
	UpdatePaymentMethod(ctx context.Context, businessID string, card model.Card, billing model.BillingInfo) (string, error)
}

type vaultUC struct {
	businesses repository.BusinessRepository
	history    repository.PaymentHistoryRepository
	providers  adapter.ProviderSet
	notifier   adapter.Notifier
	log        *zerolog.Logger
	now        func() time.Time
}

func NewVaultUseCase(
	businesses repository.BusinessRepository,
	history repository.PaymentHistoryRepository,
	providers adapter.ProviderSet,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *vaultUC {
	return &vaultUC{
		businesses: businesses,
		history:    history,
		providers:  providers,
		notifier:   orNoopNotifier(notifier),
		log:        orNopLogger(logger),
		now:        time.Now,
	}
}

// EnsureVault reads the business row on every call; nothing about an existing
// vault is cached. A concurrent create for the same business loses at the
// conditional write and is reported as a vault that is not recorded.
func (uc *vaultUC) EnsureVault(ctx context.Context, businessID string, card model.Card, billing model.BillingInfo) (string, error) {
	if err := card.Validate(uc.now()); err != nil {
		return "", err
	}
	ctx = logging.WithBusinessID(ctx, businessID)

	b, err := uc.businesses.FindByID(ctx, repository.NoTX, businessID)
	if err != nil {
		return "", err
	}
	p, err := pickProvider(uc.providers, &card)
	if err != nil {
		return "", err
	}
	req := adapter.VaultRequest{Card: card, Billing: billing, Metadata: map[string]string{"business_id": b.ID}}

	if existing := b.VaultID(p.Kind()); existing != "" {
		if err := uc.replaceCard(ctx, b, p, existing, req); err != nil {
			return "", err
		}
		return existing, nil
	}
	return uc.create(ctx, b, p, req)
}

func (uc *vaultUC) create(ctx context.Context, b *model.Business, p adapter.PaymentProvider, req adapter.VaultRequest) (string, error) {
	lg := logging.With(ctx, uc.log)

	vr, err := p.CreateVault(ctx, req)
	if err != nil {
		return "", err
	}
	if !vr.Success {
		lg.Info().Str("provider", string(p.Kind())).Str("code", vr.ErrorCode).Msg("vault creation declined")
		return "", fmt.Errorf("%w: %w", domain.ErrVaultCreationFailed, outcomeErr(vr.Status, vr.Message))
	}

	last4 := req.Card.Last4()
	recorded, err := uc.businesses.SetVaultIfAbsent(ctx, repository.NoTX, b.ID, p.Kind(), vr.VaultID, last4)
	if err == nil && !recorded {
		err = domain.ErrVaultExists
	}
	if err != nil {
		return "", uc.notRecorded(ctx, b, p.Kind(), vr, err)
	}

	entry := model.NewHistoryEntry(b.ID, model.HistoryVaultCreated, string(model.ChargeApproved), "")
	entry.RawResponse = vr.Raw
	if err := uc.history.Append(ctx, repository.NoTX, entry); err != nil {
		lg.Error().Err(err).Msg("could not record vault creation")
	}
	lg.Info().Str("provider", string(p.Kind())).Str("vault_id", vr.VaultID).Msg("vault created")
	return vr.VaultID, nil
}

func (uc *vaultUC) notRecorded(ctx context.Context, b *model.Business, kind model.ProviderKind, vr *model.VaultResult, cause error) error {
	return reportUnrecordedVault(ctx, uc.history, uc.notifier, uc.log, b.ID, kind, vr.VaultID, cause)
}

func (uc *vaultUC) replaceCard(ctx context.Context, b *model.Business, p adapter.PaymentProvider, vaultID string, req adapter.VaultRequest) error {
	lg := logging.With(ctx, uc.log)

	vr, err := p.UpdateVault(ctx, vaultID, req)
	if err != nil {
		return err
	}
	if !vr.Success {
		lg.Info().Str("provider", string(p.Kind())).Str("code", vr.ErrorCode).Msg("vault update declined")
		return outcomeErr(vr.Status, vr.Message)
	}

	last4 := req.Card.Last4()
	if err := uc.businesses.UpdatePaymentMethod(ctx, repository.NoTX, b.ID, last4); err != nil {
		// the vault id is unchanged, only the display digits are stale
		lg.Error().Err(err).Str("vault_id", vaultID).Msg("card replaced at provider but last four not updated")
		return err
	}
	entry := model.NewHistoryEntry(b.ID, model.HistoryPaymentMethodUpdate, string(model.ChargeApproved), "")
	entry.RawResponse = vr.Raw
	if err := uc.history.Append(ctx, repository.NoTX, entry); err != nil {
		lg.Error().Err(err).Msg("could not record payment method update")
	}
	lg.Info().Str("provider", string(p.Kind())).Str("vault_id", vaultID).Msg("payment method updated")
	return nil
}

// UpdatePaymentMethod goes to the provider that holds the vault, preferring
// the active one when several do.
func (uc *vaultUC) UpdatePaymentMethod(ctx context.Context, businessID string, card model.Card, billing model.BillingInfo) (string, error) {
	if err := card.Validate(uc.now()); err != nil {
		return "", err
	}
	ctx = logging.WithBusinessID(ctx, businessID)

	b, err := uc.businesses.FindByID(ctx, repository.NoTX, businessID)
	if err != nil {
		return "", err
	}

	kinds := []model.ProviderKind{uc.providers.Active().Kind(), model.ProviderNMI, model.ProviderStripe, model.ProviderSimulated}
	for _, kind := range kinds {
		vaultID := b.VaultID(kind)
		if vaultID == "" {
			continue
		}
		p, ok := uc.providers.Get(kind)
		if !ok {
			continue
		}
		req := adapter.VaultRequest{Card: card, Billing: billing, Metadata: map[string]string{"business_id": b.ID}}
		if err := uc.replaceCard(ctx, b, p, vaultID, req); err != nil {
			return "", err
		}
		return card.Last4(), nil
	}
	return "", fmt.Errorf("%w: no payment method on file", domain.ErrNotFound)
}
