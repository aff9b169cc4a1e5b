// File: internal/infra/adapters/payment/nmi_webhook.go
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
)

// native gateway event names
var nmiEventTypes = map[string]model.EventType{
	"transaction.sale.success":      model.EventRecurringSuccess,
	"transaction.sale.failure":      model.EventRecurringFailed,
	"recurring.subscription.delete": model.EventSubscriptionCanceled,
	"recurring.subscription.update": model.EventPaymentMethodUpdated,
}

func normalizeNMIType(t string) model.EventType {
	if et, ok := nmiEventTypes[t]; ok {
		return et
	}
	return model.EventType(t)
}

// flexString accepts both JSON strings and bare numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type nmiEventFields struct {
	EventID        flexString `json:"event_id"`
	EventType      flexString `json:"event_type"`
	SubscriptionID flexString `json:"subscription_id"`
	TransactionID  flexString `json:"transaction_id"`
	Status         flexString `json:"status"`
	Condition      flexString `json:"condition"`
	Amount         flexString `json:"amount"`
	Currency       flexString `json:"currency"`
	Date           flexString `json:"date"`
}

type nmiEventBody struct {
	nmiEventFields
	Action *nmiEventFields `json:"action"`
}

type nmiEventEnvelope struct {
	nmiEventFields
	Body *nmiEventBody `json:"event_body"`
}

func pick(vals ...flexString) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// ParseEvent accepts the JSON webhook format (Webhook-Signature: t=<nonce>,s=<hmac>)
// and the older form-encoded postback (X-Webhook-Signature: <hmac of body>).
func (g *NMIGateway) ParseEvent(_ context.Context, payload []byte, headers map[string]string) (*model.ProviderEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidPayload)
	}
	if trimmed[0] == '{' {
		if err := g.verifyJSON(payload, header(headers, "Webhook-Signature")); err != nil {
			return nil, err
		}
		return g.parseJSONEvent(trimmed)
	}
	if err := g.verifyForm(payload, header(headers, "X-Webhook-Signature")); err != nil {
		return nil, err
	}
	return g.parseFormEvent(trimmed)
}

func (g *NMIGateway) verifyJSON(payload []byte, sigHeader string) error {
	if g.webhookSecret == "" {
		return g.unsigned()
	}
	var nonce, sig string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			nonce = v
		case "s":
			sig = v
		}
	}
	if nonce == "" || sig == "" {
		return fmt.Errorf("%w: malformed signature header", domain.ErrInvalidSignature)
	}
	msg := make([]byte, 0, len(nonce)+1+len(payload))
	msg = append(msg, nonce...)
	msg = append(msg, '.')
	msg = append(msg, payload...)
	if !validMAC(g.webhookSecret, msg, sig) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrInvalidSignature)
	}
	return nil
}

func (g *NMIGateway) verifyForm(payload []byte, sig string) error {
	if g.webhookSecret == "" {
		return g.unsigned()
	}
	if sig == "" {
		return fmt.Errorf("%w: missing signature", domain.ErrInvalidSignature)
	}
	if !validMAC(g.webhookSecret, payload, sig) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrInvalidSignature)
	}
	return nil
}

func (g *NMIGateway) unsigned() error {
	if g.allowUnsigned {
		return nil
	}
	return fmt.Errorf("%w: no webhook secret configured", domain.ErrInvalidSignature)
}

func validMAC(secret string, msg []byte, sigHex string) bool {
	want, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(sigHex)))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hmac.Equal(mac.Sum(nil), want)
}

func signMAC(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *NMIGateway) parseJSONEvent(body []byte) (*model.ProviderEvent, error) {
	var env nmiEventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	top, mid, act := env.nmiEventFields, nmiEventFields{}, nmiEventFields{}
	if env.Body != nil {
		mid = env.Body.nmiEventFields
		if env.Body.Action != nil {
			act = *env.Body.Action
		}
	}

	native := pick(top.EventType, mid.EventType)
	if native == "" {
		return nil, fmt.Errorf("%w: missing event_type", domain.ErrInvalidPayload)
	}
	ev := &model.ProviderEvent{
		Provider:       model.ProviderNMI,
		EventID:        pick(top.EventID, mid.EventID),
		Type:           normalizeNMIType(native),
		SubscriptionID: pick(act.SubscriptionID, mid.SubscriptionID, top.SubscriptionID),
		TransactionID:  pick(act.TransactionID, mid.TransactionID, top.TransactionID),
		Status:         pick(act.Status, mid.Status, top.Status, mid.Condition, act.Condition),
		Currency:       strings.ToLower(pick(act.Currency, mid.Currency, top.Currency)),
		OccurredAt:     parseNMITime(pick(act.Date, mid.Date, top.Date)),
		Raw:            string(body),
	}
	if amt := pick(act.Amount, mid.Amount, top.Amount); amt != "" {
		cents, err := model.ParseMajor(amt)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", domain.ErrInvalidPayload, amt)
		}
		ev.Amount = cents
	}
	return ev, nil
}

func (g *NMIGateway) parseFormEvent(body []byte) (*model.ProviderEvent, error) {
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	native := vals.Get("event_type")
	if native == "" {
		return nil, fmt.Errorf("%w: missing event_type", domain.ErrInvalidPayload)
	}
	ev := &model.ProviderEvent{
		Provider:       model.ProviderNMI,
		EventID:        vals.Get("event_id"),
		Type:           normalizeNMIType(native),
		SubscriptionID: vals.Get("subscription_id"),
		TransactionID:  vals.Get("transaction_id"),
		Status:         vals.Get("status"),
		Currency:       strings.ToLower(vals.Get("currency")),
		OccurredAt:     parseNMITime(vals.Get("date")),
		Raw:            string(body),
	}
	if amt := vals.Get("amount"); amt != "" {
		cents, err := model.ParseMajor(amt)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", domain.ErrInvalidPayload, amt)
		}
		ev.Amount = cents
	}
	return ev, nil
}

func parseNMITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"20060102150405", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// header does a case-insensitive lookup; callers may pass canonical or lowercased keys.
func header(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
