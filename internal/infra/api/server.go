package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"directory-billing/internal/config"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/infra/redis"
	"directory-billing/internal/usecase"
)

// SubscriptionService is the part of the subscription use case the API reads and cancels through.
type SubscriptionService interface {
	Cancel(ctx context.Context, businessID string) (*usecase.CancelOutcome, error)
	Get(ctx context.Context, businessID string) (*model.Business, *model.SubscriptionRecord, error)
	History(ctx context.Context, businessID string, limit int) ([]*model.PaymentHistoryEntry, error)
}

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// IdempotencyStore is satisfied by redis.IdempotencyCache.
type IdempotencyStore interface {
	Begin(ctx context.Context, scope, key string) (*redis.StoredResponse, error)
	Complete(ctx context.Context, scope, key string, resp redis.StoredResponse) error
	Abort(ctx context.Context, scope, key string) error
}

type Services struct {
	Vaults        usecase.VaultUseCase
	Charges       usecase.ChargeUseCase
	Plans         usecase.PlanUseCase
	Webhooks      usecase.WebhookUseCase
	Subscriptions SubscriptionService
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server exposes the payment operations over HTTP.
type Server struct {
	svc     Services
	auth    *AuthManager
	limiter Limiter
	idem    IdempotencyStore
	cfg     config.APIConfig
	timeout time.Duration
	health  map[string]HealthCheck
	log     *zerolog.Logger
}

// NewServer accepts a nil limiter or idempotency store; the matching
// protection is then disabled.
func NewServer(
	svc Services,
	auth *AuthManager,
	limiter Limiter,
	idem IdempotencyStore,
	cfg config.APIConfig,
	timeout time.Duration,
	logger *zerolog.Logger,
) *Server {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Server{
		svc:     svc,
		auth:    auth,
		limiter: limiter,
		idem:    idem,
		cfg:     cfg,
		timeout: timeout,
		health:  map[string]HealthCheck{},
		log:     logger,
	}
}

// AddHealthCheck registers a dependency probe for GET /healthz.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.health[name] = check
}

// Routes builds the router. Webhooks are authenticated by provider
// signatures, the synchronous endpoints by bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(Timeout(s.timeout)).Post("/webhooks/{provider}", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.timeout), RequireAuth(s.auth, s.log))

		r.Post("/vault", s.handleVault)
		r.With(s.idempotent("charge")).Post("/charge", s.handleCharge)
		r.Post("/cancel-subscription", s.handleCancel)
		r.Post("/update-payment-method", s.handleUpdatePaymentMethod)
		r.With(s.idempotent("upgrade-plan")).Post("/upgrade-plan", s.handleUpgrade)

		r.Get("/businesses/{id}/subscription", s.handleGetSubscription)
		r.Get("/businesses/{id}/history", s.handleHistory)
	})
	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

type callerKey struct{}

func withCaller(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, callerKey{}, subject)
}

func callerFrom(ctx context.Context) string {
	v, _ := ctx.Value(callerKey{}).(string)
	return v
}
