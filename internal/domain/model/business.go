package model

import "time"

// ProviderKind identifies one of the interchangeable payment backends.
type ProviderKind string

const (
	ProviderNMI       ProviderKind = "nmi"       // legacy form-encoded gateway
	ProviderStripe    ProviderKind = "stripe"    // tokenized card and subscription API
	ProviderSimulated ProviderKind = "simulated" // synthetic results, no network
)

func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderNMI, ProviderStripe, ProviderSimulated:
		return true
	}
	return false
}

// Business is the subscribing entity. Its status is changed only through the
// subscription use case.
type Business struct {
	ID                    string // UUID
	OwnerID               string // opaque account reference
	Name                  string
	Status                SubscriptionStatus
	PlanName              string
	PlanPrice             int64 // cents
	Currency              string
	Interval              Interval
	VaultIDs              map[ProviderKind]string // at most one per provider
	SubscriptionIDs       map[ProviderKind]string // at most one active per provider
	PaymentMethodLastFour string
	LastPaymentDate       *time.Time
	NextBillingDate       *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (b *Business) VaultID(p ProviderKind) string {
	if b == nil || b.VaultIDs == nil {
		return ""
	}
	return b.VaultIDs[p]
}

func (b *Business) SubscriptionID(p ProviderKind) string {
	if b == nil || b.SubscriptionIDs == nil {
		return ""
	}
	return b.SubscriptionIDs[p]
}

// BusinessPatch lists the row fields a status transition may rewrite.
// Nil fields are left unchanged.
type BusinessPatch struct {
	Status          SubscriptionStatus
	PlanName        *string
	PlanPrice       *int64
	LastPaymentDate *time.Time
	NextBillingDate *time.Time
}
