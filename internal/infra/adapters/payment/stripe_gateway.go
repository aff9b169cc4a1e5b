// File: internal/infra/adapters/payment/stripe_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"directory-billing/internal/config"
	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentProvider = (*StripeGateway)(nil)
	_ adapter.EventParser     = (*StripeGateway)(nil)
)

// StripeGateway is the tokenized provider. The vault is a Customer whose
// default payment method is the stored card.
type StripeGateway struct {
	api           *client.API
	secretKey     string
	webhookSecret string
	productID     string
	allowUnsigned bool
	now           func() time.Time
}

func NewStripeGateway(cfg config.StripeConfig, timeout time.Duration, allowUnsigned bool) *StripeGateway {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	bc := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0), // retries are the caller's decision
	}
	if cfg.APIURL != "" {
		bc.URL = stripe.String(cfg.APIURL)
	}
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(bc)),
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		productID:     cfg.ProductID,
		allowUnsigned: allowUnsigned,
		now:           time.Now,
	}
}

func (g *StripeGateway) Kind() model.ProviderKind { return model.ProviderStripe }

func (g *StripeGateway) Live() bool { return g.secretKey != "" }

// stripeOutcome is a classified API failure.
type stripeOutcome struct {
	status    model.ChargeStatus
	code      string
	message   string
	retryable bool
	raw       string
}

func classifyStripeError(err error) stripeOutcome {
	var se *stripe.Error
	if !errors.As(err, &se) {
		// transport failure before any response
		return stripeOutcome{status: model.ChargeError, code: "network_error", message: FallbackMessage, retryable: true, raw: err.Error()}
	}
	code := string(se.DeclineCode)
	if code == "" {
		code = string(se.Code)
	}
	out := stripeOutcome{code: code, message: stripeMessage(code), raw: se.Error()}
	switch {
	case se.Type == stripe.ErrorTypeCard:
		out.status = model.ChargeDeclined
	case se.HTTPStatusCode >= 500, se.HTTPStatusCode == http.StatusTooManyRequests, se.Type == stripe.ErrorTypeAPI:
		out.status = model.ChargeError
		out.retryable = true
	default:
		out.status = model.ChargeError
	}
	return out
}

func isResourceMissing(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing
}

// paymentMethod turns a card into a payment-method id, creating one from raw
// card data when no token is given.
func (g *StripeGateway) paymentMethod(ctx context.Context, c model.Card, b model.BillingInfo) (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(c.PAN()),
			ExpMonth: stripe.Int64(int64(c.ExpMonth)),
			ExpYear:  stripe.Int64(int64(c.ExpYear)),
			CVC:      stripe.String(c.CVV),
		},
		BillingDetails: billingDetails(b),
	}
	params.Context = ctx
	pm, err := g.api.PaymentMethods.New(params)
	if err != nil {
		return "", err
	}
	return pm.ID, nil
}

func billingDetails(b model.BillingInfo) *stripe.PaymentMethodBillingDetailsParams {
	name := strings.TrimSpace(b.FirstName + " " + b.LastName)
	bd := &stripe.PaymentMethodBillingDetailsParams{}
	if name != "" {
		bd.Name = stripe.String(name)
	}
	if b.Email != "" {
		bd.Email = stripe.String(b.Email)
	}
	if b.Address != "" || b.Zip != "" {
		bd.Address = &stripe.AddressParams{
			Line1:      stripe.String(b.Address),
			City:       stripe.String(b.City),
			State:      stripe.String(b.State),
			PostalCode: stripe.String(b.Zip),
			Country:    stripe.String(b.Country),
		}
	}
	return bd
}

func (g *StripeGateway) CreateVault(ctx context.Context, req adapter.VaultRequest) (*model.VaultResult, error) {
	if req.Card.Number == "" && req.Card.Token == "" {
		return nil, domain.NewValidationError("payment_method", "card required")
	}
	res := &model.VaultResult{Last4: req.Card.Last4()}

	pmID, err := g.paymentMethod(ctx, req.Card, req.Billing)
	if err != nil {
		return failVault(res, classifyStripeError(err)), nil
	}
	params := &stripe.CustomerParams{
		PaymentMethod: stripe.String(pmID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(pmID),
		},
	}
	if req.Billing.Email != "" {
		params.Email = stripe.String(req.Billing.Email)
	}
	if name := strings.TrimSpace(req.Billing.FirstName + " " + req.Billing.LastName); name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return failVault(res, classifyStripeError(err)), nil
	}
	res.Success = true
	res.Status = model.ChargeApproved
	res.VaultID = cus.ID
	res.Raw = rawJSON(cus)
	return res, nil
}

// UpdateVault attaches the new card and makes it the customer's default.
func (g *StripeGateway) UpdateVault(ctx context.Context, vaultID string, req adapter.VaultRequest) (*model.VaultResult, error) {
	if vaultID == "" {
		return nil, domain.NewValidationError("customer_vault_id", "required")
	}
	if req.Card.Number == "" && req.Card.Token == "" {
		return nil, domain.NewValidationError("payment_method", "card required")
	}
	res := &model.VaultResult{VaultID: vaultID, Last4: req.Card.Last4()}

	pmID, err := g.paymentMethod(ctx, req.Card, req.Billing)
	if err != nil {
		return failVault(res, classifyStripeError(err)), nil
	}
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(vaultID)}
	attach.Context = ctx
	if _, err := g.api.PaymentMethods.Attach(pmID, attach); err != nil {
		return failVault(res, classifyStripeError(err)), nil
	}
	upd := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(pmID),
		},
	}
	upd.Context = ctx
	cus, err := g.api.Customers.Update(vaultID, upd)
	if err != nil {
		return failVault(res, classifyStripeError(err)), nil
	}
	res.Success = true
	res.Status = model.ChargeApproved
	res.Raw = rawJSON(cus)
	return res, nil
}

func failVault(res *model.VaultResult, o stripeOutcome) *model.VaultResult {
	res.Success = false
	res.Status = o.status
	res.ErrorCode = o.code
	res.Message = o.message
	res.Retryable = o.retryable
	res.Raw = o.raw
	return res
}

func (g *StripeGateway) defaultPaymentMethod(ctx context.Context, customerID string) (string, error) {
	cus, err := g.api.Customers.Get(customerID, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return "", err
	}
	if cus.InvoiceSettings == nil || cus.InvoiceSettings.DefaultPaymentMethod == nil {
		return "", &stripe.Error{
			Type:           stripe.ErrorTypeInvalidRequest,
			Code:           stripe.ErrorCodeResourceMissing,
			HTTPStatusCode: http.StatusNotFound,
			Msg:            "customer has no default payment method",
		}
	}
	return cus.InvoiceSettings.DefaultPaymentMethod.ID, nil
}

func (g *StripeGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (*model.ChargeResult, error) {
	if req.Amount < 0 {
		return nil, domain.NewValidationError("amount", "must be >= 0")
	}
	if req.Source.Empty() {
		return nil, domain.NewValidationError("payment_method", "card or vault reference required")
	}
	res := &model.ChargeResult{
		Provider: model.ProviderStripe,
		Last4:    req.Source.Last4(),
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	fail := func(err error) (*model.ChargeResult, error) {
		o := classifyStripeError(err)
		res.Status = o.status
		res.ErrorCode = o.code
		res.Message = o.message
		res.Retryable = o.retryable
		res.Raw = o.raw
		return res, nil
	}

	customerID := req.Source.VaultID
	var pmID string
	var err error
	if customerID != "" {
		pmID, err = g.defaultPaymentMethod(ctx, customerID)
	} else {
		pmID, err = g.paymentMethod(ctx, *req.Source.Card, req.Billing)
	}
	if err != nil {
		return fail(err)
	}

	if req.Recurring && customerID == "" {
		// subscriptions need a customer to bill
		vr, verr := g.CreateVault(ctx, adapter.VaultRequest{
			Card:     model.Card{Token: pmID},
			Billing:  req.Billing,
			Metadata: req.Metadata,
		})
		if verr != nil {
			return nil, verr
		}
		if !vr.Success {
			res.Status, res.ErrorCode, res.Message, res.Retryable, res.Raw = vr.Status, vr.ErrorCode, vr.Message, vr.Retryable, vr.Raw
			return res, nil
		}
		customerID = vr.VaultID
		res.VaultID = customerID
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(pmID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
		if req.Source.VaultID != "" {
			params.OffSession = stripe.Bool(true)
		}
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return fail(err)
	}
	res.TransactionID = pi.ID
	res.Raw = rawJSON(pi)
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		res.Status = model.ChargeDeclined
		res.ErrorCode = string(pi.Status)
		res.Message = stripeMessage("authentication_required")
		if pi.LastPaymentError != nil {
			code := string(pi.LastPaymentError.DeclineCode)
			if code == "" {
				code = string(pi.LastPaymentError.Code)
			}
			res.ErrorCode = code
			res.Message = stripeMessage(code)
		}
		return res, nil
	}
	res.Success = true
	res.Status = model.ChargeApproved

	if req.Recurring {
		subID, err := g.subscribe(ctx, customerID, pmID, req)
		if err != nil {
			// the first period is paid; the caller records the missing subscription
			o := classifyStripeError(err)
			res.ErrorCode = "subscription_not_created"
			res.Message = o.message
			return res, nil
		}
		res.SubscriptionID = subID
	}
	return res, nil
}

// subscribe bills from the next period; the first one was paid by the intent.
func (g *StripeGateway) subscribe(ctx context.Context, customerID, pmID string, req adapter.ChargeRequest) (string, error) {
	interval := string(req.Interval)
	if interval == "" {
		interval = string(model.IntervalMonth)
	}
	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(customerID),
		DefaultPaymentMethod: stripe.String(pmID),
		PaymentBehavior:      stripe.String("error_if_incomplete"),
		TrialEnd:             stripe.Int64(req.Interval.Next(g.now()).Unix()),
		Items: []*stripe.SubscriptionItemsParams{{
			PriceData: &stripe.SubscriptionItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				Product:    stripe.String(g.productID),
				UnitAmount: stripe.Int64(req.Amount),
				Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
					Interval: stripe.String(interval),
				},
			},
		}},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey + ":sub")
	}
	params.Context = ctx
	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return "", err
	}
	return sub.ID, nil
}

// CancelSubscription treats an already-gone subscription as cancelled.
func (g *StripeGateway) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*model.CancelResult, error) {
	if providerSubscriptionID == "" {
		return nil, domain.NewValidationError("subscription_id", "required")
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Cancel(providerSubscriptionID, params)
	if err != nil {
		if isResourceMissing(err) {
			return &model.CancelResult{Success: true, Message: "subscription already cancelled", Raw: err.Error()}, nil
		}
		o := classifyStripeError(err)
		return &model.CancelResult{Message: o.message, Retryable: o.retryable, Raw: o.raw}, nil
	}
	return &model.CancelResult{Success: true, Raw: rawJSON(sub)}, nil
}

func rawJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
