// File: internal/usecase/subscription_events.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/logging"
)

// Outcome is what happened to one webhook delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRecorded  Outcome = "recorded"  // history written, no status change
	OutcomeDuplicate Outcome = "duplicate" // event id seen before
	OutcomeIgnored   Outcome = "ignored"   // unknown event type
	OutcomeUnmatched Outcome = "unmatched" // no business for the identifier
	OutcomeStale     Outcome = "stale"     // older than the last applied event
)

func eventHistoryType(t model.EventType) model.HistoryType {
	switch t {
	case model.EventRecurringSuccess, model.EventRecurringFailed:
		return model.HistoryRecurringPayment
	case model.EventSubscriptionCanceled:
		return model.HistorySubscriptionCancel
	case model.EventPaymentMethodUpdated:
		return model.HistoryPaymentMethodUpdate
	}
	return model.HistoryWebhookEvent
}

func eventStatus(ev *model.ProviderEvent) string {
	if ev.Status != "" {
		return ev.Status
	}
	switch ev.Type {
	case model.EventRecurringSuccess:
		return string(model.ChargeApproved)
	case model.EventRecurringFailed:
		return "failed"
	case model.EventSubscriptionCanceled:
		return string(model.SubscriptionStatusCancelled)
	}
	return string(ev.Type)
}

// ApplyEvent records ev for b and applies the transition it implies.
// Re-applying an event leaves the status where the first delivery put it.
func (uc *SubscriptionUseCase) ApplyEvent(ctx context.Context, b *model.Business, ev *model.ProviderEvent) (Outcome, error) {
	lg := logging.With(ctx, uc.log)

	entry := model.NewHistoryEntry(b.ID, eventHistoryType(ev.Type), eventStatus(ev), ev.TransactionID)
	entry.Amount = ev.Amount
	entry.Currency = ev.Currency
	if entry.Currency == "" {
		entry.Currency = b.Currency
	}
	entry.RawResponse = ev.Raw

	rec, err := uc.records.FindByBusinessID(ctx, repository.NoTX, b.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if rec != nil && rec.LastEventAt != nil && !ev.OccurredAt.IsZero() && ev.OccurredAt.Before(*rec.LastEventAt) {
		entry.RawResponse = appendNote(entry.RawResponse, "older than last applied event, not applied")
		if err := uc.history.Append(ctx, repository.NoTX, entry); err != nil {
			return "", err
		}
		lg.Info().Time("occurred_at", ev.OccurredAt).Time("last_event_at", *rec.LastEventAt).Msg("stale webhook recorded")
		return OutcomeStale, nil
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = uc.now()
	}
	markEvent := func(r *model.SubscriptionRecord) {
		if !ev.OccurredAt.IsZero() {
			t := ev.OccurredAt
			r.LastEventAt = &t
		}
	}

	var t *transition
	switch ev.Type {
	case model.EventRecurringSuccess:
		if b.Status == model.SubscriptionStatusCancelled {
			uc.chargedAfterCancel(ctx, b, ev)
			break
		}
		next := b.Interval.Next(at)
		if !b.Interval.Valid() {
			next = model.IntervalMonth.Next(at)
		}
		t = &transition{
			from:  []model.SubscriptionStatus{model.SubscriptionStatusPending, model.SubscriptionStatusActive, model.SubscriptionStatusPastDue},
			to:    model.SubscriptionStatusActive,
			patch: model.BusinessPatch{LastPaymentDate: &at, NextBillingDate: &next},
			record: func(r *model.SubscriptionRecord) {
				markEvent(r)
				r.CurrentPeriodStart = &at
				r.CurrentPeriodEnd = &next
			},
		}
	case model.EventRecurringFailed:
		if b.Status != model.SubscriptionStatusActive && b.Status != model.SubscriptionStatusPastDue {
			break
		}
		t = &transition{
			from:   []model.SubscriptionStatus{model.SubscriptionStatusActive, model.SubscriptionStatusPastDue},
			to:     model.SubscriptionStatusPastDue,
			record: markEvent,
		}
	case model.EventSubscriptionCanceled:
		if b.Status == model.SubscriptionStatusCancelled && rec != nil {
			// provider confirmed a local cancel; deletion is terminal
			if err := uc.history.Append(ctx, repository.NoTX, entry); err != nil {
				return "", err
			}
			rec.ProviderDeleted = true
			markEvent(rec)
			if err := uc.records.Save(ctx, repository.NoTX, rec); err != nil {
				return "", err
			}
			return OutcomeApplied, nil
		}
		if !model.CanTransition(b.Status, model.SubscriptionStatusCancelled) {
			break
		}
		t = &transition{
			from: []model.SubscriptionStatus{model.SubscriptionStatusActive, model.SubscriptionStatusPastDue},
			to:   model.SubscriptionStatusCancelled,
			record: func(r *model.SubscriptionRecord) {
				markEvent(r)
				r.ProviderDeleted = true
				r.CancelAtPeriodEnd = true
			},
		}
	}

	if t == nil {
		if err := uc.history.Append(ctx, repository.NoTX, entry); err != nil {
			return "", err
		}
		return OutcomeRecorded, nil
	}

	t.entry = entry
	err = uc.apply(ctx, b, *t)
	switch {
	case errors.Is(err, domain.ErrStaleState):
		// a concurrent request moved the business; its change wins
		return OutcomeStale, nil
	case err != nil:
		return "", err
	}
	return OutcomeApplied, nil
}

func (uc *SubscriptionUseCase) chargedAfterCancel(ctx context.Context, b *model.Business, ev *model.ProviderEvent) {
	lg := logging.With(ctx, uc.log)
	lg.Error().Bool("critical", true).
		Str("subscription_id", ev.SubscriptionID).
		Str("transaction_id", ev.TransactionID).
		Msg("recurring payment received for a cancelled business")
	_ = uc.notifier.Notify(ctx, adapter.Notification{
		Severity:   adapter.SeverityCritical,
		BusinessID: b.ID,
		Title:      "Charged after cancellation",
		Body:       fmt.Sprintf("Provider subscription %s charged %s after the business cancelled.", ev.SubscriptionID, model.FormatMajor(ev.Amount)),
	})
}
