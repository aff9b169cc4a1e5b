// File: internal/infra/adapters/payment/stripe_webhook.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
)

var stripeEventTypes = map[string]model.EventType{
	"invoice.paid":                  model.EventRecurringSuccess,
	"invoice.payment_succeeded":     model.EventRecurringSuccess,
	"invoice.payment_failed":        model.EventRecurringFailed,
	"customer.subscription.deleted": model.EventSubscriptionCanceled,
	"payment_method.attached":       model.EventPaymentMethodUpdated,
}

// idOrObject decodes fields Stripe sends either as an id or an expanded object.
type idOrObject string

func (v *idOrObject) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = idOrObject(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*v = idOrObject(obj.ID)
	return nil
}

// stripeEventObject covers the invoice and subscription fields the reconciler uses.
type stripeEventObject struct {
	ID            string     `json:"id"`
	Object        string     `json:"object"`
	Status        string     `json:"status"`
	Subscription  idOrObject `json:"subscription"`
	PaymentIntent idOrObject `json:"payment_intent"`
	Charge        idOrObject `json:"charge"`
	AmountPaid    int64      `json:"amount_paid"`
	AmountDue     int64      `json:"amount_due"`
	Currency      string     `json:"currency"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription idOrObject `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (o stripeEventObject) subscriptionID() string {
	if o.Object == "subscription" {
		return o.ID
	}
	if o.Subscription != "" {
		return string(o.Subscription)
	}
	if o.Parent != nil && o.Parent.SubscriptionDetails != nil {
		return string(o.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (o stripeEventObject) transactionID() string {
	if o.PaymentIntent != "" {
		return string(o.PaymentIntent)
	}
	if o.Charge != "" {
		return string(o.Charge)
	}
	if o.Object == "invoice" {
		return o.ID
	}
	return ""
}

func (g *StripeGateway) ParseEvent(_ context.Context, payload []byte, headers map[string]string) (*model.ProviderEvent, error) {
	var event stripe.Event
	switch {
	case g.webhookSecret != "":
		sig := header(headers, "Stripe-Signature")
		if strings.TrimSpace(sig) == "" {
			return nil, fmt.Errorf("%w: missing Stripe-Signature", domain.ErrInvalidSignature)
		}
		ev, err := webhook.ConstructEventWithOptions(payload, sig, g.webhookSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		event = ev
	case g.allowUnsigned:
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	default:
		return nil, fmt.Errorf("%w: no webhook secret configured", domain.ErrInvalidSignature)
	}

	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing type", domain.ErrInvalidPayload)
	}
	var obj stripeEventObject
	if event.Data != nil && len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	}

	typ, ok := stripeEventTypes[string(event.Type)]
	if !ok {
		typ = model.EventType(event.Type)
	}
	amount := obj.AmountPaid
	if typ == model.EventRecurringFailed {
		amount = obj.AmountDue
	}
	ev := &model.ProviderEvent{
		Provider:       model.ProviderStripe,
		EventID:        event.ID,
		Type:           typ,
		SubscriptionID: obj.subscriptionID(),
		TransactionID:  obj.transactionID(),
		Status:         obj.Status,
		Amount:         amount,
		Currency:       obj.Currency,
		Raw:            string(payload),
	}
	if event.Created > 0 {
		ev.OccurredAt = time.Unix(event.Created, 0).UTC()
	}
	return ev, nil
}
