//go:build !integration

package model

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"directory-billing/internal/domain"
)

// --- Money ---

func TestFormatMajor(t *testing.T) {
	cases := map[int64]string{0: "0.00", 1: "0.01", 99: "0.99", 100: "1.00", 1234: "12.34", 2999900: "29999.00"}
	for cents, want := range cases {
		if got := FormatMajor(cents); got != want {
			t.Errorf("FormatMajor(%d) = %s, want %s", cents, got, want)
		}
	}
}

func TestDisplayAmountIsExact(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		cents := r.Int63n(100_000_000)
		back, err := ParseMajor(FormatMajor(cents))
		if err != nil {
			t.Fatalf("ParseMajor(FormatMajor(%d)) error: %v", cents, err)
		}
		if back != cents {
			t.Fatalf("round trip of %d gave %d", cents, back)
		}
		if !DisplayAmount(cents).Shift(2).Equal(DisplayAmount(cents).Shift(2).Truncate(0)) {
			t.Fatalf("display amount of %d has fractional cents", cents)
		}
	}
}

func TestParseMajorRejectsFractionalCents(t *testing.T) {
	if _, err := ParseMajor("12.345"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := ParseMajor("abc"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if got, _ := ParseMajor("49.90"); got != 4990 {
		t.Errorf("expected 4990, got %d", got)
	}
}

// --- Transitions ---

func TestTransitionTable(t *testing.T) {
	legal := [][2]SubscriptionStatus{
		{SubscriptionStatusPending, SubscriptionStatusActive},
		{SubscriptionStatusActive, SubscriptionStatusCancelled},
		{SubscriptionStatusActive, SubscriptionStatusPastDue},
		{SubscriptionStatusActive, SubscriptionStatusActive},
		{SubscriptionStatusPastDue, SubscriptionStatusActive},
		{SubscriptionStatusPastDue, SubscriptionStatusCancelled},
		{SubscriptionStatusCancelled, SubscriptionStatusActive},
	}
	for _, tr := range legal {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be legal", tr[0], tr[1])
		}
	}
	illegal := [][2]SubscriptionStatus{
		{SubscriptionStatusPending, SubscriptionStatusCancelled},
		{SubscriptionStatusPending, SubscriptionStatusPastDue},
		{SubscriptionStatusCancelled, SubscriptionStatusPastDue},
		{SubscriptionStatusCancelled, SubscriptionStatusCancelled},
		{SubscriptionStatusActive, SubscriptionStatusPending},
	}
	for _, tr := range illegal {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}
}

func TestRandomWalkStaysInTable(t *testing.T) {
	all := []SubscriptionStatus{SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusPastDue}
	r := rand.New(rand.NewSource(42))
	cur := SubscriptionStatusPending
	for i := 0; i < 5000; i++ {
		next := all[r.Intn(len(all))]
		if !CanTransition(cur, next) {
			continue
		}
		found := false
		for _, f := range AllowedFrom(next) {
			if f == cur {
				found = true
			}
		}
		if !found {
			t.Fatalf("AllowedFrom(%s) misses %s", next, cur)
		}
		cur = next
	}
	if !cur.Valid() {
		t.Fatalf("walk ended in unknown status %q", cur)
	}
}

// --- Cards ---

func TestCardValidate(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	ok := []Card{
		{Number: "4111 1111 1111 1111", ExpMonth: 6, ExpYear: 2026, CVV: "123"},
		{Number: "3782-822463-10005", ExpMonth: 1, ExpYear: 30, CVV: "1234"},
		{Token: "pm_card_visa"},
	}
	for _, c := range ok {
		if err := c.Validate(now); err != nil {
			t.Errorf("card %q: unexpected error %v", c.Number, err)
		}
	}
	bad := map[string]Card{
		"card_number": {Number: "4111", ExpMonth: 6, ExpYear: 2027, CVV: "123"},
		"cvv":         {Number: "378282246310005", ExpMonth: 6, ExpYear: 2027, CVV: "123"},
		"expiry":      {Number: "4111111111111111", ExpMonth: 5, ExpYear: 2026, CVV: "123"},
		"exp_month":   {Number: "4111111111111111", ExpMonth: 13, ExpYear: 2027, CVV: "123"},
	}
	for field, c := range bad {
		err := c.Validate(now)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Field != field {
			t.Errorf("expected validation error on %s, got %v", field, err)
		}
	}
}

func TestCardHelpers(t *testing.T) {
	c := Card{Number: "5555-5555-5555-4444", ExpMonth: 3, ExpYear: 2029}
	if c.Last4() != "4444" {
		t.Errorf("Last4 = %s", c.Last4())
	}
	if c.Brand() != "mastercard" {
		t.Errorf("Brand = %s", c.Brand())
	}
	if c.ExpiryString() != "0329" {
		t.Errorf("ExpiryString = %s", c.ExpiryString())
	}
	if !IsTestCard("4000 0000 0000 0002") || IsTestCard("4000000000000010") {
		t.Error("IsTestCard mismatch")
	}
}

// --- Discounts ---

func TestDiscountApply(t *testing.T) {
	pct := &Discount{PercentOff: 15, Active: true}
	final, off, err := pct.Apply(2999)
	if err != nil || off != 450 || final != 2549 {
		t.Errorf("15%% of 2999: final=%d off=%d err=%v", final, off, err)
	}
	fixed := &Discount{AmountOff: 5000, Active: true}
	final, off, _ = fixed.Apply(3000)
	if final != 0 || off != 3000 {
		t.Errorf("amount off capped: final=%d off=%d", final, off)
	}
	if _, _, err := (&Discount{PercentOff: 120}).Apply(100); !errors.Is(err, domain.ErrInvalidDiscount) {
		t.Errorf("expected ErrInvalidDiscount, got %v", err)
	}
}

func TestDiscountUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	cases := []struct {
		name string
		d    *Discount
		want bool
	}{
		{"active", &Discount{Active: true}, true},
		{"inactive", &Discount{Active: false}, false},
		{"expired", &Discount{Active: true, ExpiresAt: &past}, false},
		{"exhausted", &Discount{Active: true, MaxRedemptions: 2, Redemptions: 2}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := tc.d.Usable(now); got != tc.want {
			t.Errorf("%s: Usable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewHistoryEntryUsesSentinel(t *testing.T) {
	e := NewHistoryEntry("b1", HistorySubscriptionCancel, "cancelled", "")
	if e.TransactionID != NoTransaction {
		t.Errorf("expected sentinel, got %q", e.TransactionID)
	}
	if len(e.ID) != 26 {
		t.Errorf("expected ULID id, got %q", e.ID)
	}
}
