package adapter

import (
	"context"

	"directory-billing/internal/domain/model"
)

// ChargeRequest is what a provider needs for one charge. Amount is cents and
// is converted to major units inside the adapter.
type ChargeRequest struct {
	Amount         int64
	Currency       string
	Description    string
	CustomerEmail  string
	Source         model.PaymentSource
	Billing        model.BillingInfo
	Metadata       map[string]string // business_id, discount code, ...
	Recurring      bool
	Interval       model.Interval
	PlanName       string
	IdempotencyKey string
}

// VaultRequest carries card data for vault creation or replacement.
type VaultRequest struct {
	Card     model.Card
	Billing  model.BillingInfo
	Metadata map[string]string
}

// PaymentProvider is the hex port over one payment backend.
//
// Implementations never return raw provider errors for provider-side
// outcomes: declines, network failures and malformed responses are all
// normalized into the returned result. A non-nil error means the request
// itself was unusable and no network call was made.
type PaymentProvider interface {
	Kind() model.ProviderKind
	// Live reports whether real credentials are configured.
	Live() bool

	Charge(ctx context.Context, req ChargeRequest) (*model.ChargeResult, error)
	CreateVault(ctx context.Context, req VaultRequest) (*model.VaultResult, error)
	// UpdateVault replaces the card behind vaultID without changing the id.
	UpdateVault(ctx context.Context, vaultID string, req VaultRequest) (*model.VaultResult, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string) (*model.CancelResult, error)
}

// EventParser verifies and normalizes a provider webhook delivery.
// It returns domain.ErrInvalidSignature for unverifiable deliveries and
// domain.ErrInvalidPayload for unreadable ones.
type EventParser interface {
	ParseEvent(ctx context.Context, payload []byte, headers map[string]string) (*model.ProviderEvent, error)
}

// ProviderSet resolves providers by kind. Active is the one new charges go to.
type ProviderSet interface {
	Active() PaymentProvider
	Get(kind model.ProviderKind) (PaymentProvider, bool)
	Parser(kind model.ProviderKind) (EventParser, bool)
}
