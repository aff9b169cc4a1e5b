package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type ChargeStatus string

const (
	ChargeApproved ChargeStatus = "approved"
	ChargeDeclined ChargeStatus = "declined"
	ChargeError    ChargeStatus = "error"
)

// PaymentSource is either a full card or a stored vault reference, never neither.
type PaymentSource struct {
	Card    *Card
	VaultID string
}

func (s PaymentSource) Empty() bool {
	return s.VaultID == "" && (s.Card == nil || (s.Card.Number == "" && s.Card.Token == ""))
}

func (s PaymentSource) Last4() string {
	if s.Card != nil {
		return s.Card.Last4()
	}
	return ""
}

// ChargeAttempt is one request to charge a provider. It is not persisted.
type ChargeAttempt struct {
	BusinessID    string
	Amount        int64 // cents
	Currency      string
	Description   string
	CustomerEmail string
	DiscountCode  string // discount code id or code
	Source        PaymentSource
	Billing       BillingInfo
	Recurring     bool
	Interval      Interval
	PlanName      string

	// IdempotencyKey is forwarded to the provider so a resubmitted attempt is not charged twice.
	IdempotencyKey string
}

// ChargeResult is the provider-agnostic outcome of a charge.
type ChargeResult struct {
	Success        bool
	Status         ChargeStatus
	Provider       ProviderKind
	TransactionID  string
	SubscriptionID string // provider subscription for recurring charges
	VaultID        string
	AuthCode       string
	ErrorCode      string
	Message        string // user-facing, from the fixed message table
	Retryable      bool
	Simulated      bool
	Last4          string
	Amount         int64 // cents actually charged
	Currency       string
	DiscountOff    int64
	Raw            string // provider response, for history and support
}

// VaultResult is the outcome of creating or updating a vault.
type VaultResult struct {
	Success   bool
	Status    ChargeStatus
	VaultID   string
	Last4     string
	ErrorCode string
	Message   string
	Retryable bool
	Raw       string
}

type CancelResult struct {
	Success   bool
	Message   string
	Retryable bool
	Raw       string
}

type HistoryType string

const (
	HistoryInitialPayment      HistoryType = "initial_payment"
	HistoryRecurringPayment    HistoryType = "recurring_payment"
	HistorySubscriptionCancel  HistoryType = "subscription_cancellation"
	HistoryPaymentMethodUpdate HistoryType = "payment_method_update"
	HistoryVaultCreated        HistoryType = "vault_created"
	HistoryVaultNotRecorded    HistoryType = "vault_not_recorded"
	HistoryPlanUpgrade         HistoryType = "plan_upgrade"
	HistoryPlanDowngrade       HistoryType = "plan_downgrade"
	HistoryProviderCancelFail  HistoryType = "provider_cancellation_failed"
	HistoryWebhookEvent        HistoryType = "webhook_event"
	HistoryReconciled          HistoryType = "status_reconciled"
)

// NoTransaction marks history entries that did not move money.
const NoTransaction = "none"

// PaymentHistoryEntry is write-once.
type PaymentHistoryEntry struct {
	ID            string // ULID, sorts by creation time
	BusinessID    string
	TransactionID string
	Amount        int64
	Currency      string
	Status        string
	Type          HistoryType
	RawResponse   string
	CreatedAt     time.Time
}

// NewHistoryEntry fills ID, CreatedAt and the transaction sentinel.
func NewHistoryEntry(businessID string, typ HistoryType, status, txID string) *PaymentHistoryEntry {
	if txID == "" {
		txID = NoTransaction
	}
	return &PaymentHistoryEntry{
		ID:            ulid.Make().String(),
		BusinessID:    businessID,
		TransactionID: txID,
		Status:        status,
		Type:          typ,
		CreatedAt:     time.Now(),
	}
}
