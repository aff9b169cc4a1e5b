// File: internal/usecase/plan_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/repository"
	"directory-billing/internal/infra/logging"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

type PlanUseCase interface {
	// ChangePlan moves an active or past-due business to a plan with a
	// different price. Upgrades charge the full difference at once; downgrades
	// are recorded without a refund.
	ChangePlan(ctx context.Context, req PlanChange) (*PlanChangeResult, error)
}

type PlanChange struct {
	BusinessID     string
	CurrentPlan    string // caller's view; rejected as stale when it no longer matches
	NewPlan        string
	NewPrice       int64 // cents
	Source         model.PaymentSource
	Billing        model.BillingInfo
	DiscountCode   string
	IdempotencyKey string
}

type PlanChangeResult struct {
	Success       bool
	TransactionID string
	NewPlan       string
	UpgradeAmount int64 // charged cents; the negative price difference for a downgrade
	Charge        *model.ChargeResult
}

type planUC struct {
	businesses repository.BusinessRepository
	charges    *chargeUC
	subs       *SubscriptionUseCase
	log        *zerolog.Logger
}

func NewPlanUseCase(businesses repository.BusinessRepository, charges *chargeUC, subs *SubscriptionUseCase, logger *zerolog.Logger) *planUC {
	return &planUC{businesses: businesses, charges: charges, subs: subs, log: orNopLogger(logger)}
}

var planChangeFrom = []model.SubscriptionStatus{model.SubscriptionStatusActive, model.SubscriptionStatusPastDue}

func (uc *planUC) ChangePlan(ctx context.Context, req PlanChange) (*PlanChangeResult, error) {
	req.NewPlan = strings.TrimSpace(req.NewPlan)
	if req.BusinessID == "" {
		return nil, domain.NewValidationError("business_id", "required")
	}
	if req.NewPlan == "" {
		return nil, domain.NewValidationError("new_plan", "required")
	}
	if req.NewPrice < 0 {
		return nil, domain.NewValidationError("plan_price", "must be >= 0")
	}
	ctx = logging.WithBusinessID(ctx, req.BusinessID)

	b, err := uc.businesses.FindByID(ctx, repository.NoTX, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.SubscriptionStatusActive && b.Status != model.SubscriptionStatusPastDue {
		return nil, fmt.Errorf("%w: cannot change plan of a %s subscription", domain.ErrIllegalTransition, b.Status)
	}
	if req.CurrentPlan != "" && !strings.EqualFold(req.CurrentPlan, b.PlanName) {
		return nil, fmt.Errorf("%w: current plan is %q", domain.ErrStaleState, b.PlanName)
	}
	if req.NewPrice == b.PlanPrice {
		return nil, domain.ErrSamePrice
	}

	delta := req.NewPrice - b.PlanPrice
	if delta < 0 {
		return uc.downgrade(ctx, b, req, delta)
	}
	return uc.upgrade(ctx, b, req, delta)
}

func (uc *planUC) upgrade(ctx context.Context, b *model.Business, req PlanChange, delta int64) (*PlanChangeResult, error) {
	attempt := model.ChargeAttempt{
		BusinessID:     b.ID,
		Amount:         delta,
		Currency:       b.Currency,
		Description:    fmt.Sprintf("Upgrade %s to %s", b.PlanName, req.NewPlan),
		DiscountCode:   req.DiscountCode,
		Source:         req.Source,
		Billing:        req.Billing,
		PlanName:       req.NewPlan,
		IdempotencyKey: req.IdempotencyKey,
	}
	newPlan, newPrice := req.NewPlan, req.NewPrice

	res, err := uc.charges.submit(ctx, attempt, model.HistoryPlanUpgrade,
		func(ctx context.Context, b *model.Business, res *model.ChargeResult, entry *model.PaymentHistoryEntry) error {
			entry.RawResponse = appendNote(entry.RawResponse, fmt.Sprintf("plan %s -> %s", b.PlanName, newPlan))
			return uc.subs.apply(ctx, b, transition{
				from:  planChangeFrom,
				to:    model.SubscriptionStatusActive,
				patch: model.BusinessPatch{PlanName: &newPlan, PlanPrice: &newPrice},
				entry: entry,
			})
		})
	out := &PlanChangeResult{NewPlan: req.NewPlan, Charge: res}
	if res != nil {
		out.Success = res.Success && err == nil
		out.TransactionID = res.TransactionID
		out.UpgradeAmount = res.Amount
	}
	if err != nil {
		return out, err
	}
	lg := logging.With(ctx, uc.log)
	lg.Info().Str("new_plan", req.NewPlan).Int64("charged", res.Amount).Msg("plan upgraded")
	return out, nil
}

// downgrade keeps the current status; a past-due business stays past due.
func (uc *planUC) downgrade(ctx context.Context, b *model.Business, req PlanChange, delta int64) (*PlanChangeResult, error) {
	newPlan, newPrice := req.NewPlan, req.NewPrice

	entry := model.NewHistoryEntry(b.ID, model.HistoryPlanDowngrade, "recorded", "")
	entry.Amount = delta
	entry.Currency = b.Currency
	entry.RawResponse = fmt.Sprintf("plan %s -> %s, no refund", b.PlanName, newPlan)

	err := uc.subs.apply(ctx, b, transition{
		from:  []model.SubscriptionStatus{b.Status},
		to:    b.Status,
		patch: model.BusinessPatch{PlanName: &newPlan, PlanPrice: &newPrice},
		entry: entry,
	})
	if err != nil {
		return nil, err
	}
	lg := logging.With(ctx, uc.log)
	lg.Info().Str("new_plan", newPlan).Int64("delta", delta).Msg("plan downgraded")
	return &PlanChangeResult{Success: true, TransactionID: model.NoTransaction, NewPlan: newPlan, UpgradeAmount: delta}, nil
}
