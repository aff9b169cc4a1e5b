// File: internal/usecase/helpers.go
package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/metrics"
)

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, adapter.Notification) error { return nil }

func orNoopNotifier(n adapter.Notifier) adapter.Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

func orNopLogger(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return l
}

// pickProvider returns the provider for new card data: the simulated one for
// sandbox cards or when the active provider has no credentials.
func pickProvider(set adapter.ProviderSet, card *model.Card) (adapter.PaymentProvider, error) {
	active := set.Active()
	if active.Kind() == model.ProviderSimulated {
		return active, nil
	}
	if !active.Live() || (card != nil && card.Number != "" && model.IsTestCard(card.Number)) {
		sim, ok := set.Get(model.ProviderSimulated)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, model.ProviderSimulated)
		}
		return sim, nil
	}
	return active, nil
}

// vaultOwner finds the provider that holds vaultID for b.
func vaultOwner(set adapter.ProviderSet, b *model.Business, vaultID string) (adapter.PaymentProvider, bool) {
	if b == nil {
		return nil, false
	}
	for kind, id := range b.VaultIDs {
		if id == vaultID && id != "" {
			return set.Get(kind)
		}
	}
	return nil, false
}

// outcomeErr maps a failed provider outcome onto the sentinel errors.
func outcomeErr(status model.ChargeStatus, msg string) error {
	if status == model.ChargeDeclined {
		return fmt.Errorf("%w: %s", domain.ErrDeclined, msg)
	}
	return fmt.Errorf("%w: %s", domain.ErrProvider, msg)
}

// reportUnrecordedVault handles a vault that exists at the provider but not on
// the business row. The returned error carries the provider vault id for
// manual reconciliation.
func reportUnrecordedVault(
	ctx context.Context,
	history repository.PaymentHistoryRepository,
	notifier adapter.Notifier,
	log *zerolog.Logger,
	businessID string,
	kind model.ProviderKind,
	vaultID string,
	cause error,
) error {
	lg := logging.With(ctx, log)
	lg.Error().Err(cause).
		Bool("critical", true).
		Str("provider", string(kind)).
		Str("vault_id", vaultID).
		Msg("vault created at provider but not recorded")
	metrics.IncConsistencyError("vault_not_recorded")

	entry := model.NewHistoryEntry(businessID, model.HistoryVaultNotRecorded, "failed", "")
	entry.RawResponse = fmt.Sprintf("provider=%s vault_id=%s: %v", kind, vaultID, cause)
	if err := history.Append(ctx, repository.NoTX, entry); err != nil {
		lg.Error().Err(err).Msg("could not record unrecorded vault")
	}
	_ = notifier.Notify(ctx, adapter.Notification{
		Severity:   adapter.SeverityCritical,
		BusinessID: businessID,
		Title:      "Vault not recorded",
		Body:       fmt.Sprintf("%s vault %s exists at the provider but is not stored on the business.", kind, vaultID),
	})
	return &domain.VaultNotRecordedError{Provider: string(kind), VaultID: vaultID, Err: cause}
}
