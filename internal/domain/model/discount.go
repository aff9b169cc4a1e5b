package model

import (
	"time"

	"github.com/shopspring/decimal"

	"directory-billing/internal/domain"
)

// Discount is either a percentage or a fixed amount off, never both.
type Discount struct {
	ID             string
	Code           string
	PercentOff     int   // 0-100
	AmountOff      int64 // cents
	ExpiresAt      *time.Time
	MaxRedemptions int // 0 = unlimited
	Redemptions    int
	Active         bool
	CreatedAt      time.Time
}

// Usable reports whether the code can still be applied at now.
func (d *Discount) Usable(now time.Time) bool {
	if d == nil || !d.Active {
		return false
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return false
	}
	if d.MaxRedemptions > 0 && d.Redemptions >= d.MaxRedemptions {
		return false
	}
	return true
}

// Apply returns the discounted amount and the cents taken off.
// Percentages round half up to the cent; the result never goes below zero.
func (d *Discount) Apply(amount int64) (final, off int64, err error) {
	if amount < 0 {
		return 0, 0, domain.NewValidationError("amount", "must be >= 0")
	}
	switch {
	case d.PercentOff < 0 || d.PercentOff > 100 || d.AmountOff < 0:
		return 0, 0, domain.ErrInvalidDiscount
	case d.PercentOff > 0:
		off = decimal.NewFromInt(amount).
			Mul(decimal.NewFromInt(int64(d.PercentOff))).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	default:
		off = d.AmountOff
	}
	if off > amount {
		off = amount
	}
	return amount - off, off, nil
}
