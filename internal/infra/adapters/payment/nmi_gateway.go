// File: internal/infra/adapters/payment/nmi_gateway.go
package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"directory-billing/internal/config"
	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentProvider = (*NMIGateway)(nil)
	_ adapter.EventParser     = (*NMIGateway)(nil)
)

const nmiResponseLimit = 64 << 10

// NMIGateway talks to the legacy form-encoded gateway (transact.php).
// Requests are ordered key/value pairs, responses are query strings where
// response=1 approves, 2 declines and 3 reports an error.
type NMIGateway struct {
	endpoint      string
	securityKey   string
	webhookSecret string
	allowUnsigned bool
	client        *http.Client
	now           func() time.Time
}

func NewNMIGateway(cfg config.NMIConfig, timeout time.Duration, allowUnsigned bool) *NMIGateway {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &NMIGateway{
		endpoint:      cfg.URL,
		securityKey:   cfg.SecurityKey,
		webhookSecret: cfg.WebhookSecret,
		allowUnsigned: allowUnsigned,
		client:        &http.Client{Timeout: timeout},
		now:           time.Now,
	}
}

func (g *NMIGateway) Kind() model.ProviderKind { return model.ProviderNMI }

func (g *NMIGateway) Live() bool { return g.securityKey != "" }

// form keeps insertion order; url.Values sorts keys on Encode.
type form struct {
	keys []string
	vals map[string]string
}

func newForm() *form { return &form{vals: map[string]string{}} }

func (f *form) set(k, v string) *form {
	if v == "" {
		return f
	}
	if _, ok := f.vals[k]; !ok {
		f.keys = append(f.keys, k)
	}
	f.vals[k] = v
	return f
}

func (f *form) encode() string {
	var sb strings.Builder
	for i, k := range f.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(f.vals[k]))
	}
	return sb.String()
}

// nmiReply is one parsed gateway response.
type nmiReply struct {
	status    model.ChargeStatus
	code      string
	message   string
	retryable bool
	vals      url.Values
	raw       string
}

func (g *NMIGateway) post(ctx context.Context, f *form) nmiReply {
	body := newForm().set("security_key", g.securityKey)
	for _, k := range f.keys {
		body.set(k, f.vals[k])
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, strings.NewReader(body.encode()))
	if err != nil {
		return nmiReply{status: model.ChargeError, message: FallbackMessage, raw: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		// timeouts and transport failures: the caller may retry
		return nmiReply{status: model.ChargeError, message: FallbackMessage, retryable: true, raw: err.Error()}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, nmiResponseLimit))
	if err != nil {
		return nmiReply{status: model.ChargeError, message: FallbackMessage, retryable: true, raw: err.Error()}
	}
	raw := string(b)
	if resp.StatusCode >= 500 {
		return nmiReply{status: model.ChargeError, message: FallbackMessage, retryable: true, raw: raw}
	}
	if resp.StatusCode != http.StatusOK {
		return nmiReply{status: model.ChargeError, message: FallbackMessage, raw: raw}
	}
	return parseNMIReply(raw)
}

func parseNMIReply(raw string) nmiReply {
	vals, err := url.ParseQuery(strings.TrimSpace(raw))
	if err != nil || vals.Get("response") == "" {
		return nmiReply{status: model.ChargeError, code: "malformed_response", message: FallbackMessage, raw: raw}
	}
	code := vals.Get("response_code")
	r := nmiReply{code: code, message: nmiMessage(code), vals: vals, raw: raw}
	switch vals.Get("response") {
	case "1":
		r.status = model.ChargeApproved
	case "2":
		r.status = model.ChargeDeclined
	case "3":
		r.status = model.ChargeError
		r.retryable = !nmiNotRetryable[code]
	default:
		r.status = model.ChargeError
		r.code = "malformed_response"
		r.message = FallbackMessage
	}
	return r
}

func setCard(f *form, src model.PaymentSource) {
	if src.VaultID != "" {
		f.set("customer_vault_id", src.VaultID)
		return
	}
	if src.Card == nil {
		return
	}
	if src.Card.Token != "" && src.Card.Number == "" {
		f.set("payment_token", src.Card.Token)
		return
	}
	f.set("ccnumber", src.Card.PAN()).
		set("ccexp", src.Card.ExpiryString()).
		set("cvv", src.Card.CVV)
}

func setBilling(f *form, b model.BillingInfo) {
	f.set("first_name", b.FirstName).
		set("last_name", b.LastName).
		set("address1", b.Address).
		set("city", b.City).
		set("state", b.State).
		set("zip", b.Zip).
		set("country", b.Country).
		set("email", b.Email)
}

func (g *NMIGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (*model.ChargeResult, error) {
	if req.Amount < 0 {
		return nil, domain.NewValidationError("amount", "must be >= 0")
	}
	if req.Source.Empty() {
		return nil, domain.NewValidationError("payment_method", "card or vault reference required")
	}

	f := newForm().
		set("type", "sale").
		set("amount", model.FormatMajor(req.Amount)).
		set("currency", strings.ToUpper(req.Currency)).
		set("orderid", req.IdempotencyKey).
		set("orderdescription", req.Description)
	setCard(f, req.Source)
	setBilling(f, req.Billing)
	if req.Billing.Email == "" {
		f.set("email", req.CustomerEmail)
	}
	f.set("merchant_defined_field_1", req.Metadata["business_id"]).
		set("merchant_defined_field_2", req.Metadata["discount_code"])

	if req.Recurring {
		// the sale pays the first period; the subscription bills from the next one
		start := req.Interval.Next(g.now())
		f.set("recurring", "add_subscription").
			set("plan_payments", "0").
			set("plan_amount", model.FormatMajor(req.Amount)).
			set("start_date", start.Format("20060102"))
		if req.Interval == model.IntervalYear {
			f.set("month_frequency", "12")
		} else {
			f.set("month_frequency", "1")
		}
		f.set("day_of_month", fmt.Sprintf("%d", min(start.Day(), 28)))
	}

	r := g.post(ctx, f)
	res := &model.ChargeResult{
		Success:   r.status == model.ChargeApproved,
		Status:    r.status,
		Provider:  model.ProviderNMI,
		ErrorCode: r.code,
		Message:   r.message,
		Retryable: r.retryable,
		Last4:     req.Source.Last4(),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Raw:       r.raw,
	}
	if r.vals != nil {
		res.TransactionID = r.vals.Get("transactionid")
		res.AuthCode = r.vals.Get("authcode")
		res.SubscriptionID = r.vals.Get("subscription_id")
		res.VaultID = r.vals.Get("customer_vault_id")
	}
	if res.Success {
		res.ErrorCode = ""
	}
	return res, nil
}

// CreateVault stores the card with a zero-amount validation so a bad card is
// declined before it is stored.
func (g *NMIGateway) CreateVault(ctx context.Context, req adapter.VaultRequest) (*model.VaultResult, error) {
	if req.Card.Number == "" && req.Card.Token == "" {
		return nil, domain.NewValidationError("payment_method", "card required")
	}
	f := newForm().
		set("customer_vault", "add_customer").
		set("type", "validate")
	setCard(f, model.PaymentSource{Card: &req.Card})
	setBilling(f, req.Billing)
	f.set("merchant_defined_field_1", req.Metadata["business_id"])

	r := g.post(ctx, f)
	res := vaultResult(r, req.Card)
	if r.vals != nil {
		res.VaultID = r.vals.Get("customer_vault_id")
	}
	if res.Success && res.VaultID == "" {
		// approved without an id is unusable
		res.Success = false
		res.Status = model.ChargeError
		res.ErrorCode = "malformed_response"
		res.Message = FallbackMessage
	}
	return res, nil
}

func (g *NMIGateway) UpdateVault(ctx context.Context, vaultID string, req adapter.VaultRequest) (*model.VaultResult, error) {
	if vaultID == "" {
		return nil, domain.NewValidationError("customer_vault_id", "required")
	}
	if req.Card.Number == "" && req.Card.Token == "" {
		return nil, domain.NewValidationError("payment_method", "card required")
	}
	f := newForm().
		set("customer_vault", "update_customer").
		set("customer_vault_id", vaultID)
	setCard(f, model.PaymentSource{Card: &req.Card})
	setBilling(f, req.Billing)

	res := vaultResult(g.post(ctx, f), req.Card)
	res.VaultID = vaultID
	return res, nil
}

func vaultResult(r nmiReply, card model.Card) *model.VaultResult {
	res := &model.VaultResult{
		Success:   r.status == model.ChargeApproved,
		Status:    r.status,
		Last4:     card.Last4(),
		ErrorCode: r.code,
		Message:   r.message,
		Retryable: r.retryable,
		Raw:       r.raw,
	}
	if res.Success {
		res.ErrorCode = ""
	}
	return res
}

func (g *NMIGateway) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*model.CancelResult, error) {
	if providerSubscriptionID == "" {
		return nil, domain.NewValidationError("subscription_id", "required")
	}
	f := newForm().
		set("recurring", "delete_subscription").
		set("subscription_id", providerSubscriptionID)
	r := g.post(ctx, f)
	return &model.CancelResult{
		Success:   r.status == model.ChargeApproved,
		Message:   r.message,
		Retryable: r.retryable,
		Raw:       r.raw,
	}, nil
}
