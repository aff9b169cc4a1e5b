package repository

import (
	"context"

	"directory-billing/internal/domain/model"
)

// PaymentHistoryRepository is append-only: no update or delete.
type PaymentHistoryRepository interface {
	Append(ctx context.Context, tx Tx, e *model.PaymentHistoryEntry) error
	ListByBusiness(ctx context.Context, tx Tx, businessID string, limit int) ([]*model.PaymentHistoryEntry, error)
}

// DiscountRepository resolves and redeems discount codes.
type DiscountRepository interface {
	// FindByRef looks a discount up by id or by code.
	FindByRef(ctx context.Context, tx Tx, ref string) (*model.Discount, error)
	// Redeem increments the redemption count while the code is still usable.
	// It returns false when the code was exhausted concurrently.
	Redeem(ctx context.Context, tx Tx, id string) (bool, error)
}
