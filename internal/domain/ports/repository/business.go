package repository

import (
	"context"

	"directory-billing/internal/domain/model"
)

// BusinessRepository is the port for business rows.
// Status changes go through UpdateStatusIf only.
type BusinessRepository interface {
	Save(ctx context.Context, tx Tx, b *model.Business) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Business, error)
	FindBySubscriptionID(ctx context.Context, tx Tx, provider model.ProviderKind, subscriptionID string) (*model.Business, error)
	// FindByTransactionID finds the business through its payment history.
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Business, error)

	// SetVaultIfAbsent records vaultID only when no vault exists for provider.
	// It returns false when another vault is already recorded.
	SetVaultIfAbsent(ctx context.Context, tx Tx, businessID string, provider model.ProviderKind, vaultID, last4 string) (bool, error)
	UpdatePaymentMethod(ctx context.Context, tx Tx, businessID, last4 string) error
	SetSubscriptionID(ctx context.Context, tx Tx, businessID string, provider model.ProviderKind, subscriptionID string) error

	// UpdateStatusIf applies patch only while the current status is one of from.
	// It returns false when the precondition no longer holds.
	UpdateStatusIf(ctx context.Context, tx Tx, businessID string, from []model.SubscriptionStatus, patch model.BusinessPatch) (bool, error)

	// ListStatusDrift returns businesses whose status differs from their subscription record.
	ListStatusDrift(ctx context.Context, tx Tx, limit int) ([]*StatusDrift, error)
}

// StatusDrift pairs a business with the status its record says it should have.
type StatusDrift struct {
	BusinessID     string
	BusinessStatus model.SubscriptionStatus
	RecordStatus   model.SubscriptionStatus
}
