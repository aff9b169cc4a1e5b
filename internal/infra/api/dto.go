package api

import (
	"strings"
	"time"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/usecase"
)

type billingDTO struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

func (b billingDTO) model() model.BillingInfo {
	return model.BillingInfo{
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Email:     b.Email,
		Address:   b.Address,
		City:      b.City,
		State:     b.State,
		Zip:       b.Zip,
		Country:   b.Country,
	}
}

// paymentMethodDTO is either raw card data, a provider token or a stored vault.
type paymentMethodDTO struct {
	CardNumber string     `json:"card_number"`
	ExpMonth   int        `json:"exp_month"`
	ExpYear    int        `json:"exp_year"`
	CVV        string     `json:"cvv"`
	Token      string     `json:"token"`
	VaultID    string     `json:"customer_vault_id"`
	Billing    billingDTO `json:"billing"`
}

func (p paymentMethodDTO) card() model.Card {
	return model.Card{
		Number:   p.CardNumber,
		ExpMonth: p.ExpMonth,
		ExpYear:  p.ExpYear,
		CVV:      p.CVV,
		Token:    p.Token,
	}
}

func (p paymentMethodDTO) source() model.PaymentSource {
	if p.VaultID != "" {
		return model.PaymentSource{VaultID: p.VaultID}
	}
	if p.CardNumber == "" && p.Token == "" {
		return model.PaymentSource{}
	}
	c := p.card()
	return model.PaymentSource{Card: &c}
}

type vaultRequest struct {
	BusinessID    string           `json:"business_id"`
	PaymentMethod paymentMethodDTO `json:"payment_method"`
}

type vaultResponse struct {
	Success bool   `json:"success"`
	VaultID string `json:"customer_vault_id"`
}

type chargeRequest struct {
	Amount         int64            `json:"amount"` // cents
	Currency       string           `json:"currency"`
	Description    string           `json:"description"`
	CustomerEmail  string           `json:"customer_email"`
	PaymentMethod  paymentMethodDTO `json:"payment_method"`
	DiscountCodeID string           `json:"discount_code_id"`
	IsRecurring    bool             `json:"is_recurring"`
	Interval       string           `json:"interval"`
	PlanName       string           `json:"plan_name"`
	BusinessID     string           `json:"business_id"`
}

func (r chargeRequest) attempt(idemKey string) model.ChargeAttempt {
	return model.ChargeAttempt{
		BusinessID:     strings.TrimSpace(r.BusinessID),
		Amount:         r.Amount,
		Currency:       r.Currency,
		Description:    r.Description,
		CustomerEmail:  r.CustomerEmail,
		DiscountCode:   r.DiscountCodeID,
		Source:         r.PaymentMethod.source(),
		Billing:        r.PaymentMethod.Billing.model(),
		Recurring:      r.IsRecurring,
		Interval:       model.Interval(strings.ToLower(r.Interval)),
		PlanName:       r.PlanName,
		IdempotencyKey: idemKey,
	}
}

// chargeResponse is the ChargeResult shape; amounts are cents with a display string.
type chargeResponse struct {
	Success        bool   `json:"success"`
	Status         string `json:"status"`
	Provider       string `json:"provider"`
	TransactionID  string `json:"transaction_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	AuthCode       string `json:"auth_code,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	Message        string `json:"message,omitempty"`
	Retryable      bool   `json:"retryable"`
	Simulated      bool   `json:"simulated"`
	Last4          string `json:"last4,omitempty"`
	Amount         int64  `json:"amount"`
	DisplayAmount  string `json:"display_amount"`
	Currency       string `json:"currency"`
	DiscountOff    int64  `json:"discount_amount,omitempty"`
}

func newChargeResponse(res *model.ChargeResult) chargeResponse {
	return chargeResponse{
		Success:        res.Success,
		Status:         string(res.Status),
		Provider:       string(res.Provider),
		TransactionID:  res.TransactionID,
		SubscriptionID: res.SubscriptionID,
		AuthCode:       res.AuthCode,
		ErrorCode:      res.ErrorCode,
		Message:        res.Message,
		Retryable:      res.Retryable,
		Simulated:      res.Simulated,
		Last4:          res.Last4,
		Amount:         res.Amount,
		DisplayAmount:  model.FormatMajor(res.Amount),
		Currency:       res.Currency,
		DiscountOff:    res.DiscountOff,
	}
}

type businessRequest struct {
	BusinessID string `json:"business_id"`
}

type cancelResponse struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message"`
	ProviderCancelled bool       `json:"provider_cancelled"`
	EntitledUntil     *time.Time `json:"entitled_until,omitempty"`
}

type updatePaymentMethodRequest struct {
	BusinessID    string           `json:"business_id"`
	PaymentMethod paymentMethodDTO `json:"payment_method"`
}

type updatePaymentMethodResponse struct {
	Success bool   `json:"success"`
	Last4   string `json:"last4"`
}

// upgradeRequest keeps the camelCase field names existing callers send.
type upgradeRequest struct {
	BusinessID    string           `json:"businessId"`
	CurrentPlan   string           `json:"currentPlan"`
	NewPlan       string           `json:"newPlan"`
	PlanPrice     int64            `json:"planPrice"` // cents
	PaymentMethod paymentMethodDTO `json:"paymentMethod"`
	DiscountCode  string           `json:"discountCode"`
}

func (r upgradeRequest) change(idemKey string) usecase.PlanChange {
	return usecase.PlanChange{
		BusinessID:     strings.TrimSpace(r.BusinessID),
		CurrentPlan:    r.CurrentPlan,
		NewPlan:        r.NewPlan,
		NewPrice:       r.PlanPrice,
		Source:         r.PaymentMethod.source(),
		Billing:        r.PaymentMethod.Billing.model(),
		DiscountCode:   r.DiscountCode,
		IdempotencyKey: idemKey,
	}
}

type upgradeResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	NewPlan       string `json:"new_plan"`
	UpgradeAmount int64  `json:"upgrade_amount"`
	DisplayAmount string `json:"display_amount"`
}

type subscriptionResponse struct {
	BusinessID            string     `json:"business_id"`
	Status                string     `json:"subscription_status"`
	PlanName              string     `json:"plan_name"`
	PlanPrice             int64      `json:"plan_price"`
	Currency              string     `json:"currency"`
	PaymentMethodLastFour string     `json:"payment_method_last_four,omitempty"`
	LastPaymentDate       *time.Time `json:"last_payment_date,omitempty"`
	NextBillingDate       *time.Time `json:"next_billing_date,omitempty"`
	Provider              string     `json:"provider,omitempty"`
	CancelAtPeriodEnd     bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd      *time.Time `json:"current_period_end,omitempty"`
}

func newSubscriptionResponse(b *model.Business, rec *model.SubscriptionRecord) subscriptionResponse {
	out := subscriptionResponse{
		BusinessID:            b.ID,
		Status:                string(b.Status),
		PlanName:              b.PlanName,
		PlanPrice:             b.PlanPrice,
		Currency:              b.Currency,
		PaymentMethodLastFour: b.PaymentMethodLastFour,
		LastPaymentDate:       b.LastPaymentDate,
		NextBillingDate:       b.NextBillingDate,
	}
	if rec != nil {
		out.Provider = string(rec.Provider)
		out.CancelAtPeriodEnd = rec.CancelAtPeriodEnd
		out.CurrentPeriodEnd = rec.CurrentPeriodEnd
	}
	return out
}

type historyItem struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}
