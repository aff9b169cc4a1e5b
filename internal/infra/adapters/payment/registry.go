// File: internal/infra/adapters/payment/registry.go
package payment

import (
	"github.com/rs/zerolog"

	"directory-billing/internal/config"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/adapter"
)

var _ adapter.ProviderSet = (*Registry)(nil)

// Registry holds every configured provider. New charges go to Active, which
// is the configured provider when it has credentials and the simulated one
// otherwise. Existing vaults and subscriptions are always served by the
// provider that created them.
type Registry struct {
	active    adapter.PaymentProvider
	providers map[model.ProviderKind]adapter.PaymentProvider
	parsers   map[model.ProviderKind]adapter.EventParser
}

func NewRegistry(cfg config.PaymentConfig, wh config.WebhookConfig, logger *zerolog.Logger) *Registry {
	nmi := NewNMIGateway(cfg.NMI, cfg.Timeout, wh.AllowUnsigned)
	st := NewStripeGateway(cfg.Stripe, cfg.Timeout, wh.AllowUnsigned)
	sim := NewSimulatedGateway()

	r := &Registry{
		providers: map[model.ProviderKind]adapter.PaymentProvider{
			model.ProviderNMI:       Instrument(nmi, logger),
			model.ProviderStripe:    Instrument(st, logger),
			model.ProviderSimulated: Instrument(sim, logger),
		},
		parsers: map[model.ProviderKind]adapter.EventParser{
			model.ProviderNMI:    nmi,
			model.ProviderStripe: st,
		},
	}
	if wh.AllowUnsigned {
		r.parsers[model.ProviderSimulated] = sim
	}

	r.active = r.providers[model.ProviderSimulated]
	if p, ok := r.providers[model.ProviderKind(cfg.Provider)]; ok && p.Live() {
		r.active = p
	} else if logger != nil && cfg.Provider != string(model.ProviderSimulated) {
		logger.Warn().Str("provider", cfg.Provider).Msg("payment provider has no credentials, charges are simulated")
	}
	return r
}

// NewStaticRegistry wires explicit providers; the first one is active.
func NewStaticRegistry(active adapter.PaymentProvider, others ...adapter.PaymentProvider) *Registry {
	r := &Registry{
		active:    active,
		providers: map[model.ProviderKind]adapter.PaymentProvider{active.Kind(): active},
		parsers:   map[model.ProviderKind]adapter.EventParser{},
	}
	for _, p := range append([]adapter.PaymentProvider{active}, others...) {
		r.providers[p.Kind()] = p
		if ep, ok := p.(adapter.EventParser); ok {
			r.parsers[p.Kind()] = ep
		}
	}
	return r
}

func (r *Registry) Active() adapter.PaymentProvider { return r.active }

func (r *Registry) Get(kind model.ProviderKind) (adapter.PaymentProvider, bool) {
	p, ok := r.providers[kind]
	return p, ok
}

func (r *Registry) Parser(kind model.ProviderKind) (adapter.EventParser, bool) {
	p, ok := r.parsers[kind]
	return p, ok
}
