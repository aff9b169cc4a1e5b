package repository

import (
	"context"

	"directory-billing/internal/domain/model"
)

// SubscriptionRepository is the port for subscription records.
type SubscriptionRepository interface {
	// Save upserts the single record of a business.
	Save(ctx context.Context, tx Tx, rec *model.SubscriptionRecord) error
	FindByBusinessID(ctx context.Context, tx Tx, businessID string) (*model.SubscriptionRecord, error)
}
