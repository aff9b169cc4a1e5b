package model

import (
	"strings"

	"github.com/shopspring/decimal"

	"directory-billing/internal/domain"
)

// Amounts are integer minor units (cents) everywhere inside the core.
// Conversion to major units happens only in provider adapters and responses.

// FormatMajor renders cents as a fixed two-decimal major-unit string ("12.34").
func FormatMajor(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// DisplayAmount returns cents / 100 as an exact decimal.
func DisplayAmount(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParseMajor parses a major-unit amount and rejects fractional cents.
func ParseMajor(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, domain.NewValidationError("amount", "not a number")
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, domain.NewValidationError("amount", "fractional cents")
	}
	return cents.IntPart(), nil
}
