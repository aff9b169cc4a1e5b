// File: internal/infra/adapters/payment/simulated_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentProvider = (*SimulatedGateway)(nil)
	_ adapter.EventParser     = (*SimulatedGateway)(nil)
)

// SimulatedGateway approves everything without a network call. It serves
// sandbox test cards and environments without provider credentials.
type SimulatedGateway struct{}

func NewSimulatedGateway() *SimulatedGateway { return &SimulatedGateway{} }

func (SimulatedGateway) Kind() model.ProviderKind { return model.ProviderSimulated }

func (SimulatedGateway) Live() bool { return false }

func simID(prefix string) string {
	return "sim_" + prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (SimulatedGateway) Charge(_ context.Context, req adapter.ChargeRequest) (*model.ChargeResult, error) {
	if req.Amount < 0 {
		return nil, domain.NewValidationError("amount", "must be >= 0")
	}
	res := &model.ChargeResult{
		Success:       true,
		Status:        model.ChargeApproved,
		Provider:      model.ProviderSimulated,
		TransactionID: simID("txn"),
		AuthCode:      "SIM000",
		Message:       nmiMessage("100"),
		Simulated:     true,
		Last4:         req.Source.Last4(),
		Amount:        req.Amount,
		Currency:      req.Currency,
	}
	if req.Recurring {
		res.SubscriptionID = simID("sub")
	}
	res.Raw = fmt.Sprintf(`{"simulated":true,"transaction_id":%q,"amount":%q}`, res.TransactionID, model.FormatMajor(req.Amount))
	return res, nil
}

func (SimulatedGateway) CreateVault(_ context.Context, req adapter.VaultRequest) (*model.VaultResult, error) {
	id := simID("vault")
	return &model.VaultResult{
		Success: true,
		Status:  model.ChargeApproved,
		VaultID: id,
		Last4:   req.Card.Last4(),
		Raw:     fmt.Sprintf(`{"simulated":true,"customer_vault_id":%q}`, id),
	}, nil
}

func (SimulatedGateway) UpdateVault(_ context.Context, vaultID string, req adapter.VaultRequest) (*model.VaultResult, error) {
	if vaultID == "" {
		return nil, domain.NewValidationError("customer_vault_id", "required")
	}
	return &model.VaultResult{
		Success: true,
		Status:  model.ChargeApproved,
		VaultID: vaultID,
		Last4:   req.Card.Last4(),
		Raw:     fmt.Sprintf(`{"simulated":true,"customer_vault_id":%q}`, vaultID),
	}, nil
}

func (SimulatedGateway) CancelSubscription(_ context.Context, providerSubscriptionID string) (*model.CancelResult, error) {
	return &model.CancelResult{Success: true, Raw: fmt.Sprintf(`{"simulated":true,"subscription_id":%q}`, providerSubscriptionID)}, nil
}

type simulatedEvent struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	SubscriptionID string `json:"subscription_id"`
	TransactionID  string `json:"transaction_id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"` // cents
	Currency       string `json:"currency"`
}

// ParseEvent accepts unsigned JSON events already in normalized form. It is
// only registered when unsigned webhooks are allowed.
func (SimulatedGateway) ParseEvent(_ context.Context, payload []byte, _ map[string]string) (*model.ProviderEvent, error) {
	var se simulatedEvent
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if se.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", domain.ErrInvalidPayload)
	}
	return &model.ProviderEvent{
		Provider:       model.ProviderSimulated,
		EventID:        se.EventID,
		Type:           model.EventType(se.EventType),
		SubscriptionID: se.SubscriptionID,
		TransactionID:  se.TransactionID,
		Status:         se.Status,
		Amount:         se.Amount,
		Currency:       se.Currency,
		Raw:            string(payload),
	}, nil
}
