// File: internal/usecase/charge_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/metrics"
)

// Compile-time check
var _ ChargeUseCase = (*chargeUC)(nil)

type ChargeUseCase interface {
	// Charge resolves one attempt to approved, declined or error.
	// A declined or failed charge returns its result together with an error
	// wrapping domain.ErrDeclined or domain.ErrProvider.
	Charge(ctx context.Context, attempt model.ChargeAttempt) (*model.ChargeResult, error)
}

type chargeUC struct {
	businesses repository.BusinessRepository
	history    repository.PaymentHistoryRepository
	discounts  repository.DiscountRepository
	tm         repository.TransactionManager
	providers  adapter.ProviderSet
	subs       *SubscriptionUseCase
	notifier   adapter.Notifier
	currency   string
	log        *zerolog.Logger
	now        func() time.Time
}

func NewChargeUseCase(
	businesses repository.BusinessRepository,
	history repository.PaymentHistoryRepository,
	discounts repository.DiscountRepository,
	tm repository.TransactionManager,
	providers adapter.ProviderSet,
	subs *SubscriptionUseCase,
	notifier adapter.Notifier,
	defaultCurrency string,
	logger *zerolog.Logger,
) *chargeUC {
	if defaultCurrency == "" {
		defaultCurrency = "usd"
	}
	return &chargeUC{
		businesses: businesses,
		history:    history,
		discounts:  discounts,
		tm:         tm,
		providers:  providers,
		subs:       subs,
		notifier:   orNoopNotifier(notifier),
		currency:   strings.ToLower(defaultCurrency),
		log:        orNopLogger(logger),
		now:        time.Now,
	}
}

// onApproved runs after an approved charge tied to a business. It owns
// writing entry.
type onApproved func(ctx context.Context, b *model.Business, res *model.ChargeResult, entry *model.PaymentHistoryEntry) error

func (uc *chargeUC) Charge(ctx context.Context, attempt model.ChargeAttempt) (*model.ChargeResult, error) {
	return uc.submit(ctx, attempt, model.HistoryInitialPayment, uc.activate(attempt))
}

// activate makes the business active and links a new provider subscription.
func (uc *chargeUC) activate(attempt model.ChargeAttempt) onApproved {
	return func(ctx context.Context, b *model.Business, res *model.ChargeResult, entry *model.PaymentHistoryEntry) error {
		if res.SubscriptionID != "" {
			if err := uc.linkSubscription(ctx, b, res); err != nil {
				return err
			}
		}
		return uc.subs.Activate(ctx, b, Activation{
			Provider:               res.Provider,
			ProviderSubscriptionID: res.SubscriptionID,
			PlanName:               attempt.PlanName,
			PlanPrice:              attempt.Amount,
			Interval:               attempt.Interval,
			Recurring:              attempt.Recurring,
			Entry:                  entry,
		})
	}
}

func (uc *chargeUC) linkSubscription(ctx context.Context, b *model.Business, res *model.ChargeResult) error {
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.businesses.SetSubscriptionID(ctx, tx, b.ID, res.Provider, res.SubscriptionID); err != nil {
			return err
		}
		if b.SubscriptionIDs == nil {
			b.SubscriptionIDs = map[model.ProviderKind]string{}
		}
		b.SubscriptionIDs[res.Provider] = res.SubscriptionID
		return nil
	})
}

func validateAttempt(a *model.ChargeAttempt) error {
	if a.Amount < 0 {
		return domain.NewValidationError("amount", "must be >= 0")
	}
	if a.Recurring && a.BusinessID == "" {
		return domain.NewValidationError("business_id", "required for recurring charges")
	}
	if a.Recurring && a.Interval != "" && !a.Interval.Valid() {
		return domain.NewValidationError("interval", "must be month or year")
	}
	return nil
}

// submit is the charge state machine: validated, then simulated or submitted,
// then resolved. Charges tied to a business write exactly one charge entry.
func (uc *chargeUC) submit(ctx context.Context, attempt model.ChargeAttempt, typ model.HistoryType, approved onApproved) (*model.ChargeResult, error) {
	if err := validateAttempt(&attempt); err != nil {
		return nil, err
	}
	if attempt.Currency == "" {
		attempt.Currency = uc.currency
	}
	attempt.Currency = strings.ToLower(attempt.Currency)
	if attempt.Recurring && attempt.Interval == "" {
		attempt.Interval = model.IntervalMonth
	}
	if attempt.BusinessID != "" {
		ctx = logging.WithBusinessID(ctx, attempt.BusinessID)
	}
	lg := logging.With(ctx, uc.log)

	var b *model.Business
	if attempt.BusinessID != "" {
		var err error
		if b, err = uc.businesses.FindByID(ctx, repository.NoTX, attempt.BusinessID); err != nil {
			return nil, err
		}
		if attempt.Recurring {
			live, err := uc.subs.hasLiveSubscription(ctx, b)
			if err != nil {
				return nil, err
			}
			if live {
				return nil, domain.ErrSubscriptionExists
			}
		}
	}

	discount, err := uc.resolveDiscount(ctx, attempt.DiscountCode)
	if err != nil {
		return nil, err
	}
	amount, off := attempt.Amount, int64(0)
	if discount != nil {
		if amount, off, err = discount.Apply(attempt.Amount); err != nil {
			return nil, err
		}
	}

	var res *model.ChargeResult
	if amount == 0 {
		// fully discounted or free plans do not reach a provider
		res = &model.ChargeResult{
			Success:  true,
			Status:   model.ChargeApproved,
			Provider: uc.providers.Active().Kind(),
			Message:  "Transaction approved.",
			Last4:    attempt.Source.Last4(),
			Currency: attempt.Currency,
		}
	} else {
		if res, err = uc.callProvider(ctx, attempt, b, amount); err != nil {
			return nil, err
		}
	}
	res.Amount = amount
	res.DiscountOff = off

	if res.Success && discount != nil {
		uc.redeem(ctx, discount, res)
	}
	if res.Success && attempt.Recurring && amount > 0 && res.SubscriptionID == "" {
		lg.Error().Bool("critical", true).
			Str("transaction_id", res.TransactionID).
			Msg("recurring charge approved without a provider subscription")
		metrics.IncConsistencyError("subscription_not_created")
		res.Raw = appendNote(res.Raw, "provider subscription not created")
	}

	if b == nil {
		return res, resultErr(res)
	}

	entry := model.NewHistoryEntry(b.ID, typ, string(res.Status), res.TransactionID)
	entry.Amount = res.Amount
	entry.Currency = res.Currency
	entry.RawResponse = res.Raw

	if !res.Success {
		if err := uc.history.Append(ctx, repository.NoTX, entry); err != nil {
			lg.Error().Err(err).Str("transaction_id", res.TransactionID).Msg("could not record failed charge")
		}
		return res, resultErr(res)
	}
	if res.VaultID != "" && res.VaultID != b.VaultID(res.Provider) {
		uc.recordVault(ctx, b, res)
		entry.RawResponse = res.Raw
	}

	if err := approved(ctx, b, res, entry); err != nil {
		// the money moved; the caller sees the transaction id together with the error
		lg.Error().Err(err).Bool("critical", true).
			Str("transaction_id", res.TransactionID).
			Msg("charge approved but business not updated")
		metrics.IncConsistencyError("charge_not_applied")
		_ = uc.notifier.Notify(ctx, adapter.Notification{
			Severity:   adapter.SeverityCritical,
			BusinessID: b.ID,
			Title:      "Charge not applied",
			Body:       fmt.Sprintf("Transaction %s was approved but the business was not updated: %v", res.TransactionID, err),
		})
		return res, err
	}

	lg.Info().Str("transaction_id", res.TransactionID).
		Int64("amount", res.Amount).
		Bool("simulated", res.Simulated).
		Msg("charge approved")
	_ = uc.notifier.Notify(ctx, adapter.Notification{
		Severity:   adapter.SeverityInfo,
		BusinessID: b.ID,
		Title:      "Payment received",
		Body:       fmt.Sprintf("%s %s (%s)", model.FormatMajor(res.Amount), strings.ToUpper(res.Currency), typ),
	})
	return res, nil
}

func resultErr(res *model.ChargeResult) error {
	if res.Success {
		return nil
	}
	return outcomeErr(res.Status, res.Message)
}

// recordVault stores a vault the provider created during the charge. Losing
// the conditional write leaves a second vault at the provider; it is reported
// like any unrecorded vault and the approved charge stands.
func (uc *chargeUC) recordVault(ctx context.Context, b *model.Business, res *model.ChargeResult) {
	recorded, err := uc.businesses.SetVaultIfAbsent(ctx, repository.NoTX, b.ID, res.Provider, res.VaultID, res.Last4)
	if err == nil && !recorded {
		err = domain.ErrVaultExists
	}
	if err != nil {
		_ = reportUnrecordedVault(ctx, uc.history, uc.notifier, uc.log, b.ID, res.Provider, res.VaultID, err)
		res.Raw = appendNote(res.Raw, fmt.Sprintf("vault %s not recorded: %v", res.VaultID, err))
		return
	}
	if b.VaultIDs == nil {
		b.VaultIDs = map[model.ProviderKind]string{}
	}
	b.VaultIDs[res.Provider] = res.VaultID
	b.PaymentMethodLastFour = res.Last4
}

// resolveDiscount fails the charge for unknown, expired or exhausted codes.
func (uc *chargeUC) resolveDiscount(ctx context.Context, ref string) (*model.Discount, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	d, err := uc.discounts.FindByRef(ctx, repository.NoTX, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidDiscount, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("discount lookup: %w", err)
	}
	if !d.Usable(uc.now()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidDiscount, ref)
	}
	return d, nil
}

// redeem never undoes an approved charge; a failure is logged and noted.
func (uc *chargeUC) redeem(ctx context.Context, d *model.Discount, res *model.ChargeResult) {
	ok, err := uc.discounts.Redeem(ctx, repository.NoTX, d.ID)
	if err == nil && ok {
		return
	}
	if err == nil {
		err = domain.ErrInvalidDiscount
	}
	lg := logging.With(ctx, uc.log)
	lg.Error().Err(err).
		Str("discount_id", d.ID).
		Str("transaction_id", res.TransactionID).
		Msg("discount redemption failed after approved charge")
	res.Raw = appendNote(res.Raw, fmt.Sprintf("discount %s redemption failed: %v", d.Code, err))
}

func appendNote(raw, note string) string {
	if raw == "" {
		return "note: " + note
	}
	return raw + "\nnote: " + note
}

// callProvider routes the attempt: sandbox cards and missing credentials go
// to the simulated provider, stored vaults go to the provider that owns them.
func (uc *chargeUC) callProvider(ctx context.Context, attempt model.ChargeAttempt, b *model.Business, amount int64) (*model.ChargeResult, error) {
	src := attempt.Source
	var p adapter.PaymentProvider

	switch {
	case src.VaultID != "":
		owner, ok := vaultOwner(uc.providers, b, src.VaultID)
		if !ok {
			owner = uc.providers.Active()
		}
		p = owner
	case src.Card != nil:
		var err error
		if p, err = pickProvider(uc.providers, src.Card); err != nil {
			return nil, err
		}
		if attempt.Recurring && b != nil {
			if id := b.VaultID(p.Kind()); id != "" {
				// the subscription bills the vault on file, so the new card goes there
				if failed, err := uc.replaceVaultCard(ctx, p, b, id, attempt); failed != nil || err != nil {
					return failed, err
				}
				src = model.PaymentSource{VaultID: id}
			}
		}
	case b != nil:
		// no card data: charge the vault on file
		kinds := []model.ProviderKind{uc.providers.Active().Kind(), model.ProviderSimulated, model.ProviderNMI, model.ProviderStripe}
		for _, k := range kinds {
			if id := b.VaultID(k); id != "" {
				if owner, ok := uc.providers.Get(k); ok {
					p, src = owner, model.PaymentSource{VaultID: id}
					break
				}
			}
		}
	}
	if p == nil || src.Empty() {
		return nil, domain.NewValidationError("payment_method", "card or stored payment method required")
	}
	if src.Card != nil {
		if err := src.Card.Validate(uc.now()); err != nil {
			return nil, err
		}
	}

	meta := map[string]string{}
	if attempt.BusinessID != "" {
		meta["business_id"] = attempt.BusinessID
	}
	if attempt.DiscountCode != "" {
		meta["discount_code"] = attempt.DiscountCode
	}
	ctx = logging.WithProvider(ctx, string(p.Kind()))
	res, err := p.Charge(ctx, adapter.ChargeRequest{
		Amount:         amount,
		Currency:       attempt.Currency,
		Description:    attempt.Description,
		CustomerEmail:  attempt.CustomerEmail,
		Source:         src,
		Billing:        attempt.Billing,
		Metadata:       meta,
		Recurring:      attempt.Recurring,
		Interval:       attempt.Interval,
		PlanName:       attempt.PlanName,
		IdempotencyKey: attempt.IdempotencyKey,
	})
	if res != nil && res.Last4 == "" {
		res.Last4 = attempt.Source.Last4()
	}
	return res, err
}

// replaceVaultCard puts the attempt's card on vaultID. A provider refusal is
// returned as a failed charge result.
func (uc *chargeUC) replaceVaultCard(ctx context.Context, p adapter.PaymentProvider, b *model.Business, vaultID string, attempt model.ChargeAttempt) (*model.ChargeResult, error) {
	card := *attempt.Source.Card
	if err := card.Validate(uc.now()); err != nil {
		return nil, err
	}
	vr, err := p.UpdateVault(ctx, vaultID, adapter.VaultRequest{
		Card:     card,
		Billing:  attempt.Billing,
		Metadata: map[string]string{"business_id": b.ID},
	})
	if err != nil {
		return nil, err
	}
	if !vr.Success {
		return &model.ChargeResult{
			Status:    vr.Status,
			Provider:  p.Kind(),
			ErrorCode: vr.ErrorCode,
			Message:   vr.Message,
			Retryable: vr.Retryable,
			Last4:     card.Last4(),
			Currency:  attempt.Currency,
			Raw:       vr.Raw,
		}, nil
	}
	if err := uc.businesses.UpdatePaymentMethod(ctx, repository.NoTX, b.ID, card.Last4()); err != nil {
		lg := logging.With(ctx, uc.log)
		lg.Error().Err(err).Str("vault_id", vaultID).Msg("card replaced at provider but last four not updated")
	} else {
		b.PaymentMethodLastFour = card.Last4()
	}
	return nil, nil
}
