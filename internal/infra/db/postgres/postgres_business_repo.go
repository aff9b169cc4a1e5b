package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/repository"
)

var _ repository.BusinessRepository = (*businessRepo)(nil)

type businessRepo struct{ pool *pgxpool.Pool }

func NewBusinessRepo(pool *pgxpool.Pool) *businessRepo {
	return &businessRepo{pool: pool}
}

const businessColumns = `id, owner_id, name, subscription_status, plan_name, plan_price, currency, billing_interval,
  payment_method_last_four, last_payment_date, next_billing_date, created_at, updated_at`

func (r *businessRepo) Save(ctx context.Context, tx repository.Tx, b *model.Business) error {
	const q = `
INSERT INTO businesses (
  id, owner_id, name, subscription_status, plan_name, plan_price, currency, billing_interval,
  payment_method_last_four, last_payment_date, next_billing_date, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  owner_id=$2, name=$3, plan_name=$5, plan_price=$6, currency=$7, billing_interval=$8, updated_at=$13;`

	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = model.SubscriptionStatusPending
	}
	if b.Interval == "" {
		b.Interval = model.IntervalMonth
	}
	// status and payment fields are owned by the conditional updates below
	_, err := execSQL(ctx, r.pool, tx, q, b.ID, b.OwnerID, b.Name, b.Status, b.PlanName, b.PlanPrice, b.Currency, b.Interval,
		b.PaymentMethodLastFour, b.LastPaymentDate, b.NextBillingDate, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return mapExecErr(err)
	}
	return nil
}

func (r *businessRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Business, error) {
	q := forUpdate(`SELECT `+businessColumns+` FROM businesses WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	b := &model.Business{}
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Status, &b.PlanName, &b.PlanPrice, &b.Currency, &b.Interval,
		&b.PaymentMethodLastFour, &b.LastPaymentDate, &b.NextBillingDate, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	if err := r.loadRefs(ctx, tx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *businessRepo) loadRefs(ctx context.Context, tx repository.Tx, b *model.Business) error {
	const q = `SELECT provider, vault_id, subscription_id FROM business_provider_refs WHERE business_id=$1;`
	rows, err := queryRows(ctx, r.pool, tx, q, b.ID)
	if err != nil {
		return mapExecErr(err)
	}
	defer rows.Close()

	b.VaultIDs = map[model.ProviderKind]string{}
	b.SubscriptionIDs = map[model.ProviderKind]string{}
	for rows.Next() {
		var (
			provider       model.ProviderKind
			vaultID, subID *string
		)
		if err := rows.Scan(&provider, &vaultID, &subID); err != nil {
			return domain.ErrReadDatabaseRow
		}
		if vaultID != nil {
			b.VaultIDs[provider] = *vaultID
		}
		if subID != nil {
			b.SubscriptionIDs[provider] = *subID
		}
	}
	if rows.Err() != nil {
		return domain.ErrReadDatabaseRow
	}
	return nil
}

func (r *businessRepo) findIDBy(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (string, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return "", err
	}
	var id string
	if err := row.Scan(&id); err != nil {
		return "", mapScanErr(err)
	}
	return id, nil
}

func (r *businessRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, provider model.ProviderKind, subscriptionID string) (*model.Business, error) {
	const q = `SELECT business_id FROM business_provider_refs WHERE provider=$1 AND subscription_id=$2 LIMIT 1;`
	id, err := r.findIDBy(ctx, tx, q, provider, subscriptionID)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, tx, id)
}

func (r *businessRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Business, error) {
	if transactionID == "" || transactionID == model.NoTransaction {
		return nil, domain.ErrNotFound
	}
	const q = `SELECT business_id FROM payment_history WHERE transaction_id=$1 ORDER BY id DESC LIMIT 1;`
	id, err := r.findIDBy(ctx, tx, q, transactionID)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, tx, id)
}

// SetVaultIfAbsent inserts or fills the provider ref and updates last four in
// one statement, so two concurrent creators cannot both win.
func (r *businessRepo) SetVaultIfAbsent(ctx context.Context, tx repository.Tx, businessID string, provider model.ProviderKind, vaultID, last4 string) (bool, error) {
	const q = `
WITH ref AS (
  INSERT INTO business_provider_refs (business_id, provider, vault_id, updated_at)
  VALUES ($1, $2, $3, NOW())
  ON CONFLICT (business_id, provider) DO UPDATE
     SET vault_id = EXCLUDED.vault_id, updated_at = NOW()
   WHERE business_provider_refs.vault_id IS NULL
  RETURNING business_id
)
UPDATE businesses
   SET payment_method_last_four = $4,
       updated_at = NOW()
 WHERE id = (SELECT business_id FROM ref);`

	cmd, err := execSQL(ctx, r.pool, tx, q, businessID, provider, vaultID, last4)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *businessRepo) UpdatePaymentMethod(ctx context.Context, tx repository.Tx, businessID, last4 string) error {
	const q = `UPDATE businesses SET payment_method_last_four=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, businessID, last4)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *businessRepo) SetSubscriptionID(ctx context.Context, tx repository.Tx, businessID string, provider model.ProviderKind, subscriptionID string) error {
	const q = `
INSERT INTO business_provider_refs (business_id, provider, subscription_id, updated_at)
VALUES ($1, $2, NULLIF($3, ''), NOW())
ON CONFLICT (business_id, provider) DO UPDATE
   SET subscription_id = NULLIF($3, ''), updated_at = NOW();`
	if _, err := execSQL(ctx, r.pool, tx, q, businessID, provider, subscriptionID); err != nil {
		return mapExecErr(err)
	}
	return nil
}

// UpdateStatusIf is a compare-and-swap on subscription_status.
func (r *businessRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, businessID string, from []model.SubscriptionStatus, patch model.BusinessPatch) (bool, error) {
	if len(from) == 0 || !patch.Status.Valid() {
		return false, domain.ErrInvalidArgument
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	const q = `
UPDATE businesses
   SET subscription_status = $2,
       plan_name = COALESCE($3, plan_name),
       plan_price = COALESCE($4, plan_price),
       last_payment_date = COALESCE($5, last_payment_date),
       next_billing_date = COALESCE($6, next_billing_date),
       updated_at = NOW()
 WHERE id = $1
   AND subscription_status = ANY($7);`

	cmd, err := execSQL(ctx, r.pool, tx, q, businessID, string(patch.Status), patch.PlanName, patch.PlanPrice,
		patch.LastPaymentDate, patch.NextBillingDate, allowed)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *businessRepo) ListStatusDrift(ctx context.Context, tx repository.Tx, limit int) ([]*repository.StatusDrift, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT b.id, b.subscription_status, s.status
  FROM businesses b
  JOIN subscriptions s ON s.business_id = b.id
 WHERE b.subscription_status <> s.status
 ORDER BY b.updated_at ASC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*repository.StatusDrift
	for rows.Next() {
		d := new(repository.StatusDrift)
		if err := rows.Scan(&d.BusinessID, &d.BusinessStatus, &d.RecordStatus); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
