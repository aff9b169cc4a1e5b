package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.SubscriptionRecord) error {
	const q = `
INSERT INTO subscriptions (
  id, business_id, provider, provider_subscription_id, status, cancel_at_period_end,
  current_period_start, current_period_end, provider_deleted, last_event_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (business_id) DO UPDATE SET
  provider=$3, provider_subscription_id=$4, status=$5, cancel_at_period_end=$6,
  current_period_start=$7, current_period_end=$8, provider_deleted=$9, last_event_at=$10, updated_at=$12;`

	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.BusinessID, s.Provider, s.ProviderSubscriptionID, s.Status, s.CancelAtPeriodEnd,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.ProviderDeleted, s.LastEventAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return mapExecErr(err)
	}
	return nil
}

func (r *subscriptionRepo) FindByBusinessID(ctx context.Context, tx repository.Tx, businessID string) (*model.SubscriptionRecord, error) {
	q := forUpdate(`
SELECT id, business_id, provider, provider_subscription_id, status, cancel_at_period_end,
       current_period_start, current_period_end, provider_deleted, last_event_at, created_at, updated_at
  FROM subscriptions WHERE business_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, businessID)
	if err != nil {
		return nil, err
	}
	s := &model.SubscriptionRecord{}
	if err := row.Scan(&s.ID, &s.BusinessID, &s.Provider, &s.ProviderSubscriptionID, &s.Status, &s.CancelAtPeriodEnd,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.ProviderDeleted, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return s, nil
}
