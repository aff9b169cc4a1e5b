package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/repository"
)

var _ repository.DiscountRepository = (*discountRepo)(nil)

type discountRepo struct{ pool *pgxpool.Pool }

func NewDiscountRepo(pool *pgxpool.Pool) *discountRepo {
	return &discountRepo{pool: pool}
}

// FindByRef accepts the discount id or its code (case-insensitive).
func (r *discountRepo) FindByRef(ctx context.Context, tx repository.Tx, ref string) (*model.Discount, error) {
	q := `SELECT id, code, percent_off, amount_off, expires_at, max_redemptions, redemptions, active, created_at FROM discount_codes`
	if _, err := uuid.Parse(ref); err == nil {
		q += ` WHERE id=$1`
	} else {
		q += ` WHERE lower(code)=lower($1)`
	}
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), ref)
	if err != nil {
		return nil, err
	}

	d := &model.Discount{}
	if err := row.Scan(&d.ID, &d.Code, &d.PercentOff, &d.AmountOff, &d.ExpiresAt, &d.MaxRedemptions, &d.Redemptions, &d.Active, &d.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return d, nil
}

func (r *discountRepo) Redeem(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE discount_codes
   SET redemptions = redemptions + 1
 WHERE id = $1
   AND active
   AND (expires_at IS NULL OR expires_at > NOW())
   AND (max_redemptions = 0 OR redemptions < max_redemptions);`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}
