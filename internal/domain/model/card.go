package model

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"directory-billing/internal/domain"
)

var (
	separators = strings.NewReplacer(" ", "", "-", "")
	digitsOnly = regexp.MustCompile(`^[0-9]+$`)
	amexPrefix = regexp.MustCompile(`^3[47]`)
)

// testCards are the well-known sandbox numbers that always take the simulated path.
var testCards = []string{
	"4111111111111111",
	"4000000000000002",
	"4242424242424242",
	"5555555555554444",
	"5431111111111111",
	"378282246310005",
	"371449635398431",
	"6011111111111117",
}

// IsTestCard reports whether number (separators allowed) is a sandbox card.
func IsTestCard(number string) bool {
	return slices.Contains(testCards, separators.Replace(number))
}

// Card is either full card data or a provider payment-method token.
type Card struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVV      string
	Token    string // modern provider payment-method id, e.g. pm_...
}

// PAN returns the number with spaces and dashes removed.
func (c Card) PAN() string { return separators.Replace(c.Number) }

func (c Card) Last4() string {
	n := c.PAN()
	if len(n) < 4 {
		return ""
	}
	return n[len(n)-4:]
}

func (c Card) IsAmex() bool { return amexPrefix.MatchString(c.PAN()) }

func (c Card) Brand() string {
	n := c.PAN()
	switch {
	case c.IsAmex():
		return "amex"
	case strings.HasPrefix(n, "4"):
		return "visa"
	case len(n) > 1 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(n, "6011"), strings.HasPrefix(n, "65"):
		return "discover"
	}
	return "unknown"
}

// ExpiryString renders MMYY as the legacy gateway expects.
func (c Card) ExpiryString() string {
	yy := c.ExpYear % 100
	return twoDigits(c.ExpMonth) + twoDigits(yy)
}

func twoDigits(n int) string {
	s := strconv.Itoa(n)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

// Validate checks number length, brand-dependent CVV length and expiry
// against now. A token-only card skips the number checks.
func (c Card) Validate(now time.Time) error {
	if c.Token != "" && c.Number == "" {
		return nil
	}
	n := c.PAN()
	if n == "" {
		return domain.NewValidationError("card_number", "required")
	}
	if !digitsOnly.MatchString(n) || len(n) < 13 || len(n) > 19 {
		return domain.NewValidationError("card_number", "must be 13-19 digits")
	}
	want := 3
	if c.IsAmex() {
		want = 4
	}
	if len(c.CVV) != want || !digitsOnly.MatchString(c.CVV) {
		return domain.NewValidationError("cvv", "must be "+strconv.Itoa(want)+" digits")
	}
	if c.ExpMonth < 1 || c.ExpMonth > 12 {
		return domain.NewValidationError("exp_month", "must be 1-12")
	}
	year := c.ExpYear
	if year < 100 {
		year += 2000
	}
	if year < now.Year() || (year == now.Year() && c.ExpMonth < int(now.Month())) {
		return domain.NewValidationError("expiry", "card expired")
	}
	return nil
}

// BillingInfo is sent with vault creation.
type BillingInfo struct {
	FirstName string
	LastName  string
	Email     string
	Address   string
	City      string
	State     string
	Zip       string
	Country   string
}
