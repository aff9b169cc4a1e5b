package model

import (
	"slices"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"   // no successful payment yet
	SubscriptionStatusActive    SubscriptionStatus = "active"    // current payment succeeded
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled" // entitled until period end
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"  // a recurring charge failed
)

// transitions lists the statuses reachable from each status.
// active->active and past_due->active cover renewals and plan changes,
// cancelled->active is reactivation after a new successful charge.
var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusPending:   {SubscriptionStatusActive},
	SubscriptionStatusActive:    {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusPastDue},
	SubscriptionStatusPastDue:   {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusPastDue},
	SubscriptionStatusCancelled: {SubscriptionStatusActive},
}

func (s SubscriptionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from->to is in the transition table.
func CanTransition(from, to SubscriptionStatus) bool {
	return slices.Contains(transitions[from], to)
}

// AllowedFrom returns every status from which to is reachable, in a stable order.
func AllowedFrom(to SubscriptionStatus) []SubscriptionStatus {
	var out []SubscriptionStatus
	for _, from := range []SubscriptionStatus{
		SubscriptionStatusPending,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCancelled,
	} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// SubscriptionRecord mirrors the provider-side subscription of a business.
// One record per business; the history of changes lives in PaymentHistoryEntry.
type SubscriptionRecord struct {
	ID                     string // UUID
	BusinessID             string
	Provider               ProviderKind
	ProviderSubscriptionID string // empty for one-time plans
	Status                 SubscriptionStatus
	CancelAtPeriodEnd      bool
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	ProviderDeleted        bool       // provider confirmed deletion; terminal
	LastEventAt            *time.Time // provider timestamp of the last applied webhook
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Interval is the billing cadence of a recurring plan.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

func (i Interval) Valid() bool { return i == IntervalMonth || i == IntervalYear }

// Next returns the end of a period starting at t.
func (i Interval) Next(t time.Time) time.Time {
	if i == IntervalYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
