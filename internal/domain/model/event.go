package model

import "time"

type EventType string

const (
	EventRecurringSuccess     EventType = "recurring_payment_success"
	EventRecurringFailed      EventType = "recurring_payment_failed"
	EventSubscriptionCanceled EventType = "subscription_cancelled"
	EventPaymentMethodUpdated EventType = "payment_method_updated"
)

func (t EventType) Known() bool {
	switch t {
	case EventRecurringSuccess, EventRecurringFailed, EventSubscriptionCanceled, EventPaymentMethodUpdated:
		return true
	}
	return false
}

// ProviderEvent is a verified webhook normalized by a provider adapter.
// Unknown provider types pass through with their native name in Type.
type ProviderEvent struct {
	Provider       ProviderKind
	EventID        string // empty when the provider sends none
	Type           EventType
	SubscriptionID string
	TransactionID  string
	Status         string
	Amount         int64 // cents
	Currency       string
	OccurredAt     time.Time // zero when unknown
	Raw            string
}
