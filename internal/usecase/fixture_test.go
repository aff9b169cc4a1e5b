//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/usecase"
)

// fixture wires every use case against in-memory mocks. The NMI mock is the
// active provider; sim serves sandbox cards.
type fixture struct {
	history    *MockHistoryRepo
	businesses *MockBusinessRepo
	records    *MockSubscriptionRepo
	discounts  *MockDiscountRepo
	tm         *MockTxManager
	nmi        *MockProvider
	sim        *MockProvider
	providers  *MockProviderSet
	notifier   *MockNotifier
	dedup      *MockDeduper

	subs     *usecase.SubscriptionUseCase
	charges  usecase.ChargeUseCase
	vaults   usecase.VaultUseCase
	plans    usecase.PlanUseCase
	webhooks usecase.WebhookUseCase
}

func newFixture(t *testing.T, discounts ...*model.Discount) *fixture {
	t.Helper()
	fx := &fixture{
		history:   NewMockHistoryRepo(),
		records:   NewMockSubscriptionRepo(),
		discounts: NewMockDiscountRepo(discounts...),
		tm:        NewMockTxManager(),
		nmi:       NewMockProvider(model.ProviderNMI, true),
		sim:       NewMockProvider(model.ProviderSimulated, false),
		notifier:  &MockNotifier{},
		dedup:     NewMockDeduper(),
	}
	fx.businesses = NewMockBusinessRepo(fx.history)
	fx.providers = NewMockProviderSet(fx.nmi, fx.sim)

	logger := newTestLogger()
	fx.subs = usecase.NewSubscriptionUseCase(fx.businesses, fx.records, fx.history, fx.tm, fx.providers, fx.notifier, logger)
	charges := usecase.NewChargeUseCase(fx.businesses, fx.history, fx.discounts, fx.tm, fx.providers, fx.subs, fx.notifier, "usd", logger)
	fx.charges = charges
	fx.vaults = usecase.NewVaultUseCase(fx.businesses, fx.history, fx.providers, fx.notifier, logger)
	fx.plans = usecase.NewPlanUseCase(fx.businesses, charges, fx.subs, logger)
	fx.webhooks = usecase.NewWebhookUseCase(fx.businesses, fx.providers, fx.subs, fx.dedup, logger)
	return fx
}

func (fx *fixture) addBusiness(t *testing.T, id string, status model.SubscriptionStatus, mutate ...func(b *model.Business)) *model.Business {
	t.Helper()
	b := &model.Business{
		ID:        id,
		OwnerID:   "owner-" + id,
		Name:      "Business " + id,
		Status:    status,
		PlanName:  "basic",
		PlanPrice: 2900,
		Currency:  "usd",
		Interval:  model.IntervalMonth,
		CreatedAt: time.Now(),
	}
	for _, m := range mutate {
		m(b)
	}
	if err := fx.businesses.Save(context.Background(), nil, b); err != nil {
		t.Fatalf("seed business: %v", err)
	}
	return b
}

func withSubscription(kind model.ProviderKind, subID string) func(b *model.Business) {
	return func(b *model.Business) {
		b.SubscriptionIDs = map[model.ProviderKind]string{kind: subID}
	}
}

func withVault(kind model.ProviderKind, vaultID string) func(b *model.Business) {
	return func(b *model.Business) {
		b.VaultIDs = map[model.ProviderKind]string{kind: vaultID}
	}
}

func futureCard(number, cvv string) model.Card {
	return model.Card{Number: number, ExpMonth: 12, ExpYear: time.Now().Year() + 3, CVV: cvv}
}
