package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/repository"
)

var _ repository.PaymentHistoryRepository = (*historyRepo)(nil)

// Sealer encrypts raw provider responses at rest. aad binds the value to a business.
type Sealer interface {
	Seal(plaintext, aad string) (string, error)
	Open(value, aad string) (string, error)
}

type historyRepo struct {
	pool   *pgxpool.Pool
	sealer Sealer
}

// NewHistoryRepo stores raw responses in plain text when sealer is nil.
func NewHistoryRepo(pool *pgxpool.Pool, sealer Sealer) *historyRepo {
	return &historyRepo{pool: pool, sealer: sealer}
}

func (r *historyRepo) Append(ctx context.Context, tx repository.Tx, e *model.PaymentHistoryEntry) error {
	if e == nil || e.ID == "" || e.BusinessID == "" {
		return domain.ErrInvalidArgument
	}
	if e.TransactionID == "" {
		e.TransactionID = model.NoTransaction
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	raw := e.RawResponse
	if r.sealer != nil {
		sealed, err := r.sealer.Seal(raw, e.BusinessID)
		if err != nil {
			return domain.ErrOperationFailed
		}
		raw = sealed
	}

	const q = `
INSERT INTO payment_history (id, business_id, transaction_id, amount, currency, status, type, raw_response, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.BusinessID, e.TransactionID, e.Amount, e.Currency, e.Status, e.Type, raw, e.CreatedAt)
	if err != nil {
		return mapExecErr(err)
	}
	return nil
}

func (r *historyRepo) ListByBusiness(ctx context.Context, tx repository.Tx, businessID string, limit int) ([]*model.PaymentHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, business_id, transaction_id, amount, currency, status, type, raw_response, created_at
  FROM payment_history WHERE business_id=$1 ORDER BY id DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, businessID, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentHistoryEntry
	for rows.Next() {
		e := new(model.PaymentHistoryEntry)
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.TransactionID, &e.Amount, &e.Currency, &e.Status, &e.Type, &e.RawResponse, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if r.sealer != nil {
			plain, err := r.sealer.Open(e.RawResponse, e.BusinessID)
			if err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
			e.RawResponse = plain
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
