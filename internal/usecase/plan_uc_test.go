//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/usecase"
)

func TestPlanUseCase_ChangePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("upgrade charges the difference", func(t *testing.T) {
		// --- Arrange ---
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusActive, withVault(model.ProviderNMI, "V1"))

		// --- Act ---
		res, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", CurrentPlan: "basic", NewPlan: "premium", NewPrice: 7900})

		// --- Assert ---
		if err != nil {
			t.Fatalf("ChangePlan: %v", err)
		}
		if !res.Success || res.UpgradeAmount != 5000 || res.TransactionID == "" {
			t.Errorf("unexpected result %+v", res)
		}
		if len(fx.nmi.Charges) != 1 || fx.nmi.Charges[0].Amount != 5000 || fx.nmi.Charges[0].Source.VaultID != "V1" {
			t.Errorf("expected a 5000 cent vault charge, got %+v", fx.nmi.Charges)
		}
		b := fx.businesses.Get("X")
		if b.PlanName != "premium" || b.PlanPrice != 7900 || b.Status != model.SubscriptionStatusActive {
			t.Errorf("unexpected business %+v", b)
		}
		if n := len(fx.history.OfType(model.HistoryPlanUpgrade)); n != 1 {
			t.Errorf("expected one plan_upgrade entry, got %d", n)
		}
	})

	t.Run("upgrade from past due recovers the business", func(t *testing.T) {
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusPastDue, withVault(model.ProviderNMI, "V1"))

		if _, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", NewPlan: "premium", NewPrice: 7900}); err != nil {
			t.Fatalf("ChangePlan: %v", err)
		}
		if fx.businesses.Get("X").Status != model.SubscriptionStatusActive {
			t.Error("expected active")
		}
	})

	t.Run("declined upgrade leaves the plan", func(t *testing.T) {
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusActive, withVault(model.ProviderNMI, "V1"))
		fx.nmi.ChargeFunc = declineCharge

		res, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", NewPlan: "premium", NewPrice: 7900})
		if !errors.Is(err, domain.ErrDeclined) {
			t.Fatalf("expected ErrDeclined, got %v", err)
		}
		if res == nil || res.Success {
			t.Errorf("expected an unsuccessful result, got %+v", res)
		}
		if fx.businesses.Get("X").PlanName != "basic" {
			t.Error("plan must not change on decline")
		}
	})

	t.Run("upgrade on a cancelled business is rejected", func(t *testing.T) {
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusCancelled)

		_, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", NewPlan: "premium", NewPrice: 7900})
		if !errors.Is(err, domain.ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition, got %v", err)
		}
		if len(fx.nmi.Charges)+len(fx.sim.Charges) != 0 {
			t.Error("expected no provider call")
		}
	})

	t.Run("same price is rejected", func(t *testing.T) {
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusActive)

		_, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", NewPlan: "basic-plus", NewPrice: 2900})
		if !errors.Is(err, domain.ErrSamePrice) {
			t.Fatalf("expected ErrSamePrice, got %v", err)
		}
	})

	t.Run("stale current plan", func(t *testing.T) {
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusActive)

		_, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", CurrentPlan: "starter", NewPlan: "premium", NewPrice: 7900})
		if !errors.Is(err, domain.ErrStaleState) {
			t.Fatalf("expected ErrStaleState, got %v", err)
		}
	})

	t.Run("downgrade records the difference without charging", func(t *testing.T) {
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusActive)

		res, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", NewPlan: "lite", NewPrice: 900})
		if err != nil {
			t.Fatalf("ChangePlan: %v", err)
		}
		if res.UpgradeAmount != -2000 || res.TransactionID != model.NoTransaction {
			t.Errorf("unexpected result %+v", res)
		}
		if len(fx.nmi.Charges)+len(fx.sim.Charges) != 0 {
			t.Error("downgrade must not charge")
		}
		entries := fx.history.OfType(model.HistoryPlanDowngrade)
		if len(entries) != 1 || entries[0].Amount != -2000 {
			t.Errorf("unexpected downgrade entries %+v", entries)
		}
		if b := fx.businesses.Get("X"); b.PlanName != "lite" || b.PlanPrice != 900 {
			t.Errorf("unexpected plan %s at %d", b.PlanName, b.PlanPrice)
		}
	})

	t.Run("downgrade keeps a past due business past due", func(t *testing.T) {
		fx := newFixture(t)
		fx.addBusiness(t, "X", model.SubscriptionStatusPastDue)

		if _, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", NewPlan: "lite", NewPrice: 900}); err != nil {
			t.Fatalf("ChangePlan: %v", err)
		}
		if fx.businesses.Get("X").Status != model.SubscriptionStatusPastDue {
			t.Error("expected past_due")
		}
	})

	t.Run("missing new plan", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.plans.ChangePlan(ctx, usecase.PlanChange{BusinessID: "X", NewPrice: 900})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
