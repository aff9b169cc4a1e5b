//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

func cloneBusiness(b *model.Business) *model.Business {
	cp := *b
	cp.VaultIDs = map[model.ProviderKind]string{}
	for k, v := range b.VaultIDs {
		cp.VaultIDs[k] = v
	}
	cp.SubscriptionIDs = map[model.ProviderKind]string{}
	for k, v := range b.SubscriptionIDs {
		cp.SubscriptionIDs[k] = v
	}
	return &cp
}

type MockBusinessRepo struct {
	mu      sync.Mutex
	store   map[string]*model.Business
	history *MockHistoryRepo

	SetVaultIfAbsentFunc func(ctx context.Context, businessID string, provider model.ProviderKind, vaultID, last4 string) (bool, error)
	UpdateStatusIfFunc   func(ctx context.Context, businessID string, from []model.SubscriptionStatus, patch model.BusinessPatch) (bool, error)
	FindByIDCalls        int
	Drift                []*repository.StatusDrift
}

var _ repository.BusinessRepository = (*MockBusinessRepo)(nil)

func NewMockBusinessRepo(history *MockHistoryRepo) *MockBusinessRepo {
	return &MockBusinessRepo{store: map[string]*model.Business{}, history: history}
}

func (m *MockBusinessRepo) Save(ctx context.Context, tx repository.Tx, b *model.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[b.ID] = cloneBusiness(b)
	return nil
}

func (m *MockBusinessRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindByIDCalls++
	b, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBusiness(b), nil
}

// Get is a test helper that bypasses call counting.
func (m *MockBusinessRepo) Get(id string) *model.Business {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.store[id]; ok {
		return cloneBusiness(b)
	}
	return nil
}

func (m *MockBusinessRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, provider model.ProviderKind, subscriptionID string) (*model.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.store {
		if b.SubscriptionIDs[provider] == subscriptionID {
			return cloneBusiness(b), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockBusinessRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Business, error) {
	if m.history == nil {
		return nil, domain.ErrNotFound
	}
	for _, e := range m.history.All() {
		if e.TransactionID == transactionID && e.TransactionID != model.NoTransaction {
			return m.FindByID(ctx, tx, e.BusinessID)
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockBusinessRepo) SetVaultIfAbsent(ctx context.Context, tx repository.Tx, businessID string, provider model.ProviderKind, vaultID, last4 string) (bool, error) {
	if m.SetVaultIfAbsentFunc != nil {
		return m.SetVaultIfAbsentFunc(ctx, businessID, provider, vaultID, last4)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[businessID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b.VaultIDs == nil {
		b.VaultIDs = map[model.ProviderKind]string{}
	}
	if b.VaultIDs[provider] != "" {
		return false, nil
	}
	b.VaultIDs[provider] = vaultID
	b.PaymentMethodLastFour = last4
	return true, nil
}

func (m *MockBusinessRepo) UpdatePaymentMethod(ctx context.Context, tx repository.Tx, businessID, last4 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[businessID]
	if !ok {
		return domain.ErrNotFound
	}
	b.PaymentMethodLastFour = last4
	return nil
}

func (m *MockBusinessRepo) SetSubscriptionID(ctx context.Context, tx repository.Tx, businessID string, provider model.ProviderKind, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[businessID]
	if !ok {
		return domain.ErrNotFound
	}
	if b.SubscriptionIDs == nil {
		b.SubscriptionIDs = map[model.ProviderKind]string{}
	}
	b.SubscriptionIDs[provider] = subscriptionID
	return nil
}

func (m *MockBusinessRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, businessID string, from []model.SubscriptionStatus, patch model.BusinessPatch) (bool, error) {
	if m.UpdateStatusIfFunc != nil {
		return m.UpdateStatusIfFunc(ctx, businessID, from, patch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[businessID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if b.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	b.Status = patch.Status
	if patch.PlanName != nil {
		b.PlanName = *patch.PlanName
	}
	if patch.PlanPrice != nil {
		b.PlanPrice = *patch.PlanPrice
	}
	if patch.LastPaymentDate != nil {
		b.LastPaymentDate = patch.LastPaymentDate
	}
	if patch.NextBillingDate != nil {
		b.NextBillingDate = patch.NextBillingDate
	}
	return true, nil
}

func (m *MockBusinessRepo) ListStatusDrift(ctx context.Context, tx repository.Tx, limit int) ([]*repository.StatusDrift, error) {
	if limit > 0 && len(m.Drift) > limit {
		return m.Drift[:limit], nil
	}
	return m.Drift, nil
}

type MockSubscriptionRepo struct {
	mu    sync.Mutex
	store map[string]*model.SubscriptionRecord
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{store: map[string]*model.SubscriptionRecord{}}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, rec *model.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store[rec.BusinessID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByBusinessID(ctx context.Context, tx repository.Tx, businessID string) (*model.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.store[businessID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

type MockHistoryRepo struct {
	mu      sync.Mutex
	entries []*model.PaymentHistoryEntry

	AppendErr error
}

var _ repository.PaymentHistoryRepository = (*MockHistoryRepo)(nil)

func NewMockHistoryRepo() *MockHistoryRepo { return &MockHistoryRepo{} }

func (m *MockHistoryRepo) Append(ctx context.Context, tx repository.Tx, e *model.PaymentHistoryEntry) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MockHistoryRepo) ListByBusiness(ctx context.Context, tx repository.Tx, businessID string, limit int) ([]*model.PaymentHistoryEntry, error) {
	var out []*model.PaymentHistoryEntry
	for _, e := range m.All() {
		if e.BusinessID == businessID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockHistoryRepo) All() []*model.PaymentHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.PaymentHistoryEntry(nil), m.entries...)
}

func (m *MockHistoryRepo) OfType(typ model.HistoryType) []*model.PaymentHistoryEntry {
	var out []*model.PaymentHistoryEntry
	for _, e := range m.All() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type MockDiscountRepo struct {
	mu    sync.Mutex
	store map[string]*model.Discount

	RedeemErr error
}

var _ repository.DiscountRepository = (*MockDiscountRepo)(nil)

func NewMockDiscountRepo(ds ...*model.Discount) *MockDiscountRepo {
	m := &MockDiscountRepo{store: map[string]*model.Discount{}}
	for _, d := range ds {
		m.store[d.ID] = d
	}
	return m
}

func (m *MockDiscountRepo) FindByRef(ctx context.Context, tx repository.Tx, ref string) (*model.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.store {
		if d.ID == ref || d.Code == ref {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDiscountRepo) Redeem(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	if m.RedeemErr != nil {
		return false, m.RedeemErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok || !d.Usable(time.Now()) {
		return false, nil
	}
	d.Redemptions++
	return true, nil
}

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

type MockProvider struct {
	mu   sync.Mutex
	kind model.ProviderKind
	live bool
	seq  int

	ChargeFunc      func(ctx context.Context, req adapter.ChargeRequest) (*model.ChargeResult, error)
	CreateVaultFunc func(ctx context.Context, req adapter.VaultRequest) (*model.VaultResult, error)
	UpdateVaultFunc func(ctx context.Context, vaultID string, req adapter.VaultRequest) (*model.VaultResult, error)
	CancelFunc      func(ctx context.Context, subID string) (*model.CancelResult, error)

	Charges []adapter.ChargeRequest
	Creates []adapter.VaultRequest
	Updates []string
	Cancels []string
}

var (
	_ adapter.PaymentProvider = (*MockProvider)(nil)
	_ adapter.EventParser     = (*MockProvider)(nil)
)

func NewMockProvider(kind model.ProviderKind, live bool) *MockProvider {
	return &MockProvider{kind: kind, live: live}
}

func (m *MockProvider) Kind() model.ProviderKind { return m.kind }
func (m *MockProvider) Live() bool               { return m.live }

func (m *MockProvider) next(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *MockProvider) Charge(ctx context.Context, req adapter.ChargeRequest) (*model.ChargeResult, error) {
	m.mu.Lock()
	m.Charges = append(m.Charges, req)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &model.ChargeResult{
		Success:       true,
		Status:        model.ChargeApproved,
		Provider:      m.kind,
		TransactionID: m.next("txn-"),
		Last4:         req.Source.Last4(),
		Amount:        req.Amount,
		Currency:      req.Currency,
		Simulated:     m.kind == model.ProviderSimulated,
		Raw:           "response=1",
	}
	if req.Recurring {
		res.SubscriptionID = m.next("sub-")
	}
	return res, nil
}

func (m *MockProvider) CreateVault(ctx context.Context, req adapter.VaultRequest) (*model.VaultResult, error) {
	m.mu.Lock()
	m.Creates = append(m.Creates, req)
	m.mu.Unlock()
	if m.CreateVaultFunc != nil {
		return m.CreateVaultFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &model.VaultResult{Success: true, Status: model.ChargeApproved, VaultID: m.next("V"), Last4: req.Card.Last4()}, nil
}

func (m *MockProvider) UpdateVault(ctx context.Context, vaultID string, req adapter.VaultRequest) (*model.VaultResult, error) {
	m.mu.Lock()
	m.Updates = append(m.Updates, vaultID)
	m.mu.Unlock()
	if m.UpdateVaultFunc != nil {
		return m.UpdateVaultFunc(ctx, vaultID, req)
	}
	return &model.VaultResult{Success: true, Status: model.ChargeApproved, VaultID: vaultID, Last4: req.Card.Last4()}, nil
}

func (m *MockProvider) CancelSubscription(ctx context.Context, subID string) (*model.CancelResult, error) {
	m.mu.Lock()
	m.Cancels = append(m.Cancels, subID)
	m.mu.Unlock()
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, subID)
	}
	return &model.CancelResult{Success: true}, nil
}

type mockEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	SubscriptionID string    `json:"subscription_id"`
	TransactionID  string    `json:"transaction_id"`
	Amount         int64     `json:"amount"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ParseEvent accepts a bare JSON event; "bad-signature" in the headers fails verification.
func (m *MockProvider) ParseEvent(ctx context.Context, payload []byte, headers map[string]string) (*model.ProviderEvent, error) {
	if _, bad := headers["bad-signature"]; bad {
		return nil, domain.ErrInvalidSignature
	}
	var e mockEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return &model.ProviderEvent{
		Provider:       m.kind,
		EventID:        e.EventID,
		Type:           model.EventType(e.EventType),
		SubscriptionID: e.SubscriptionID,
		TransactionID:  e.TransactionID,
		Amount:         e.Amount,
		OccurredAt:     e.OccurredAt,
		Raw:            string(payload),
	}, nil
}

// MockProviderSet is a fixed registry.
type MockProviderSet struct {
	active    adapter.PaymentProvider
	providers map[model.ProviderKind]*MockProvider
}

var _ adapter.ProviderSet = (*MockProviderSet)(nil)

func NewMockProviderSet(active *MockProvider, others ...*MockProvider) *MockProviderSet {
	s := &MockProviderSet{active: active, providers: map[model.ProviderKind]*MockProvider{active.kind: active}}
	for _, p := range others {
		s.providers[p.kind] = p
	}
	return s
}

func (s *MockProviderSet) Active() adapter.PaymentProvider { return s.active }

func (s *MockProviderSet) Get(kind model.ProviderKind) (adapter.PaymentProvider, bool) {
	p, ok := s.providers[kind]
	if !ok {
		return nil, false
	}
	return p, true
}

func (s *MockProviderSet) Parser(kind model.ProviderKind) (adapter.EventParser, bool) {
	p, ok := s.providers[kind]
	if !ok {
		return nil, false
	}
	return p, true
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []adapter.Notification
}

func (m *MockNotifier) Notify(ctx context.Context, n adapter.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
	return nil
}

func (m *MockNotifier) Critical() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Sent {
		if s.Severity == adapter.SeverityCritical {
			n++
		}
	}
	return n
}

// MockDeduper is an in-memory EventDeduper.
type MockDeduper struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewMockDeduper() *MockDeduper { return &MockDeduper{seen: map[string]string{}} }

func (d *MockDeduper) Claim(ctx context.Context, provider, eventID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := provider + ":" + eventID
	if _, ok := d.seen[key]; ok {
		return "", false, nil
	}
	token := fmt.Sprintf("tok-%d", len(d.seen)+1)
	d.seen[key] = token
	return token, true, nil
}

func (d *MockDeduper) Release(ctx context.Context, provider, eventID, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := provider + ":" + eventID
	if d.seen[key] == token {
		delete(d.seen, key)
	}
	return nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
