// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/metrics"
)

// SubscriptionUseCase is the only writer of Business.Status.
//
// A transition appends its history entry first and then applies the status
// change to the business row and the subscription record in one transaction.
// The row update is a compare-and-swap on the current status, so a transition
// whose precondition was changed by a concurrent request is rejected with
// domain.ErrStaleState. The history entry stays either way.
type SubscriptionUseCase struct {
	businesses repository.BusinessRepository
	records    repository.SubscriptionRepository
	history    repository.PaymentHistoryRepository
	tm         repository.TransactionManager
	providers  adapter.ProviderSet
	notifier   adapter.Notifier
	log        *zerolog.Logger
	now        func() time.Time
}

func NewSubscriptionUseCase(
	businesses repository.BusinessRepository,
	records repository.SubscriptionRepository,
	history repository.PaymentHistoryRepository,
	tm repository.TransactionManager,
	providers adapter.ProviderSet,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *SubscriptionUseCase {
	return &SubscriptionUseCase{
		businesses: businesses,
		records:    records,
		history:    history,
		tm:         tm,
		providers:  providers,
		notifier:   orNoopNotifier(notifier),
		log:        orNopLogger(logger),
		now:        time.Now,
	}
}

// transition describes one status change.
type transition struct {
	from   []model.SubscriptionStatus
	to     model.SubscriptionStatus
	patch  model.BusinessPatch
	entry  *model.PaymentHistoryEntry
	record func(rec *model.SubscriptionRecord)
}

// apply runs t against b. b.Status is the caller's view and must allow t.to.
func (uc *SubscriptionUseCase) apply(ctx context.Context, b *model.Business, t transition) error {
	if !model.CanTransition(b.Status, t.to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, b.Status, t.to)
	}
	if t.entry != nil {
		if err := uc.history.Append(ctx, repository.NoTX, t.entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}

	t.patch.Status = t.to
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := uc.businesses.UpdateStatusIf(ctx, tx, b.ID, t.from, t.patch)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrStaleState
		}
		rec, err := uc.records.FindByBusinessID(ctx, tx, b.ID)
		if errors.Is(err, domain.ErrNotFound) {
			rec = &model.SubscriptionRecord{ID: uuid.NewString(), BusinessID: b.ID}
		} else if err != nil {
			return err
		}
		rec.Status = t.to
		if t.record != nil {
			t.record(rec)
		}
		return uc.records.Save(ctx, tx, rec)
	})
	if err != nil {
		lg := logging.With(ctx, uc.log)
		lg.Warn().Err(err).
			Str("business_id", b.ID).
			Str("from", string(b.Status)).
			Str("to", string(t.to)).
			Msg("status transition not applied")
		return err
	}

	metrics.IncTransition(string(b.Status), string(t.to))
	b.Status = t.to
	applyPatch(b, t.patch)
	return nil
}

func applyPatch(b *model.Business, p model.BusinessPatch) {
	if p.PlanName != nil {
		b.PlanName = *p.PlanName
	}
	if p.PlanPrice != nil {
		b.PlanPrice = *p.PlanPrice
	}
	if p.LastPaymentDate != nil {
		b.LastPaymentDate = p.LastPaymentDate
	}
	if p.NextBillingDate != nil {
		b.NextBillingDate = p.NextBillingDate
	}
}

// Activation is a successful payment that makes a business active.
type Activation struct {
	Provider               model.ProviderKind
	ProviderSubscriptionID string
	PlanName               string
	PlanPrice              int64
	Interval               model.Interval
	Recurring              bool
	Entry                  *model.PaymentHistoryEntry
}

// Activate moves b to active after a successful charge. It is allowed from
// every status: first payment, renewal, recovery from past_due and
// reactivation of a cancelled business.
func (uc *SubscriptionUseCase) Activate(ctx context.Context, b *model.Business, a Activation) error {
	now := uc.now()
	patch := model.BusinessPatch{LastPaymentDate: &now}
	if a.PlanName != "" {
		patch.PlanName = &a.PlanName
		patch.PlanPrice = &a.PlanPrice
	}
	interval := a.Interval
	if !interval.Valid() {
		interval = b.Interval
	}
	var periodEnd *time.Time
	if a.Recurring && interval.Valid() {
		next := interval.Next(now)
		patch.NextBillingDate = &next
		periodEnd = &next
	}

	return uc.apply(ctx, b, transition{
		from:  model.AllowedFrom(model.SubscriptionStatusActive),
		to:    model.SubscriptionStatusActive,
		patch: patch,
		entry: a.Entry,
		record: func(rec *model.SubscriptionRecord) {
			rec.Provider = a.Provider
			if a.ProviderSubscriptionID != "" {
				rec.ProviderSubscriptionID = a.ProviderSubscriptionID
				rec.ProviderDeleted = false
			}
			rec.CancelAtPeriodEnd = false
			rec.CurrentPeriodStart = &now
			rec.CurrentPeriodEnd = periodEnd
		},
	})
}

// CancelOutcome is returned by Cancel.
type CancelOutcome struct {
	Message           string
	ProviderCancelled bool
	EntitledUntil     *time.Time
}

// Cancel cancels locally even when the provider call fails; the failure is
// logged and recorded as a provider_cancellation_failed history entry.
func (uc *SubscriptionUseCase) Cancel(ctx context.Context, businessID string) (*CancelOutcome, error) {
	ctx = logging.WithBusinessID(ctx, businessID)
	lg := logging.With(ctx, uc.log)

	b, err := uc.businesses.FindByID(ctx, repository.NoTX, businessID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(b.Status, model.SubscriptionStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel a %s subscription", domain.ErrIllegalTransition, b.Status)
	}

	out := &CancelOutcome{ProviderCancelled: true, EntitledUntil: b.NextBillingDate}
	confirmed := map[string]bool{}
	for kind, subID := range b.SubscriptionIDs {
		if subID == "" {
			continue
		}
		if ok := uc.cancelAtProvider(ctx, b, kind, subID); !ok {
			out.ProviderCancelled = false
			continue
		}
		confirmed[subID] = true
	}

	entry := model.NewHistoryEntry(b.ID, model.HistorySubscriptionCancel, string(model.SubscriptionStatusCancelled), "")
	entry.Currency = b.Currency
	err = uc.apply(ctx, b, transition{
		from:  []model.SubscriptionStatus{model.SubscriptionStatusActive, model.SubscriptionStatusPastDue},
		to:    model.SubscriptionStatusCancelled,
		entry: entry,
		record: func(rec *model.SubscriptionRecord) {
			rec.CancelAtPeriodEnd = true
			if rec.ProviderSubscriptionID == "" {
				for kind, id := range b.SubscriptionIDs {
					if confirmed[id] {
						rec.Provider, rec.ProviderSubscriptionID = kind, id
						break
					}
				}
			}
			if confirmed[rec.ProviderSubscriptionID] {
				rec.ProviderDeleted = true
			}
		},
	})
	if err != nil {
		return nil, err
	}

	out.Message = "Subscription cancelled."
	if b.NextBillingDate != nil {
		out.Message = "Subscription cancelled. Access continues until " + b.NextBillingDate.Format("January 2, 2006") + "."
	}
	lg.Info().Bool("provider_cancelled", out.ProviderCancelled).Msg("subscription cancelled")
	return out, nil
}

func (uc *SubscriptionUseCase) cancelAtProvider(ctx context.Context, b *model.Business, kind model.ProviderKind, subID string) bool {
	lg := logging.With(ctx, uc.log)
	p, found := uc.providers.Get(kind)
	var (
		res *model.CancelResult
		err error
	)
	if !found {
		err = fmt.Errorf("%w: %s", domain.ErrProviderNotFound, kind)
	} else {
		res, err = p.CancelSubscription(ctx, subID)
	}
	if err == nil && res.Success {
		return true
	}

	raw := ""
	if err != nil {
		raw = err.Error()
	} else {
		raw = res.Raw
		err = fmt.Errorf("%w: %s", domain.ErrProvider, res.Message)
	}
	lg.Error().Err(err).
		Str("provider", string(kind)).
		Str("subscription_id", subID).
		Msg("provider cancellation failed, cancelling locally")

	entry := model.NewHistoryEntry(b.ID, model.HistoryProviderCancelFail, "failed", "")
	entry.RawResponse = fmt.Sprintf("provider=%s subscription_id=%s: %s", kind, subID, raw)
	if herr := uc.history.Append(ctx, repository.NoTX, entry); herr != nil {
		lg.Error().Err(herr).Msg("could not record provider cancellation failure")
	}
	_ = uc.notifier.Notify(ctx, adapter.Notification{
		Severity:   adapter.SeverityCritical,
		BusinessID: b.ID,
		Title:      "Provider cancellation failed",
		Body:       fmt.Sprintf("%s subscription %s is still active at the provider.", kind, subID),
	})
	return false
}

// hasLiveSubscription reports whether b still has a provider subscription
// that bills it. A subscription the provider confirmed deleted does not count,
// even after a one-time charge reactivated the business.
func (uc *SubscriptionUseCase) hasLiveSubscription(ctx context.Context, b *model.Business) (bool, error) {
	if b.Status != model.SubscriptionStatusActive && b.Status != model.SubscriptionStatusPastDue {
		return false, nil
	}
	var rec *model.SubscriptionRecord
	for _, id := range b.SubscriptionIDs {
		if id == "" {
			continue
		}
		if rec == nil {
			var err error
			rec, err = uc.records.FindByBusinessID(ctx, repository.NoTX, b.ID)
			if errors.Is(err, domain.ErrNotFound) {
				return true, nil
			}
			if err != nil {
				return false, err
			}
		}
		if rec.ProviderSubscriptionID == id && rec.ProviderDeleted {
			continue
		}
		return true, nil
	}
	return false, nil
}

// Get returns the business and its subscription record (nil when it never paid).
func (uc *SubscriptionUseCase) Get(ctx context.Context, businessID string) (*model.Business, *model.SubscriptionRecord, error) {
	b, err := uc.businesses.FindByID(ctx, repository.NoTX, businessID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := uc.records.FindByBusinessID(ctx, repository.NoTX, businessID)
	if errors.Is(err, domain.ErrNotFound) {
		return b, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return b, rec, nil
}

// History lists the most recent history entries of a business.
func (uc *SubscriptionUseCase) History(ctx context.Context, businessID string, limit int) ([]*model.PaymentHistoryEntry, error) {
	if _, err := uc.businesses.FindByID(ctx, repository.NoTX, businessID); err != nil {
		return nil, err
	}
	return uc.history.ListByBusiness(ctx, repository.NoTX, businessID, limit)
}

// ReconcileDrift rewrites businesses whose status differs from their
// subscription record. It returns how many rows were corrected.
func (uc *SubscriptionUseCase) ReconcileDrift(ctx context.Context, batch int) (int, error) {
	drifts, err := uc.businesses.ListStatusDrift(ctx, repository.NoTX, batch)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, d := range drifts {
		lg := uc.log.With().Str("business_id", d.BusinessID).
			Str("business_status", string(d.BusinessStatus)).
			Str("record_status", string(d.RecordStatus)).Logger()

		ok, err := uc.businesses.UpdateStatusIf(ctx, repository.NoTX, d.BusinessID,
			[]model.SubscriptionStatus{d.BusinessStatus}, model.BusinessPatch{Status: d.RecordStatus})
		if err != nil {
			lg.Error().Err(err).Msg("drift correction failed")
			continue
		}
		if !ok {
			lg.Info().Msg("business changed since drift scan, skipped")
			continue
		}
		entry := model.NewHistoryEntry(d.BusinessID, model.HistoryReconciled, string(d.RecordStatus), "")
		entry.RawResponse = fmt.Sprintf("business status %s rewritten from subscription record", d.BusinessStatus)
		if err := uc.history.Append(ctx, repository.NoTX, entry); err != nil {
			lg.Error().Err(err).Msg("could not record drift correction")
		}
		lg.Warn().Msg("business status drift corrected")
		fixed++
	}
	metrics.AddDriftCorrected(fixed)
	return fixed, nil
}
