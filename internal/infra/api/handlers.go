package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"directory-billing/internal/domain"
	"directory-billing/internal/domain/model"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/redis"
)

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func requireBusiness(w http.ResponseWriter, id string) bool {
	if strings.TrimSpace(id) == "" {
		writeError(w, domain.NewValidationError("business_id", "required"))
		return false
	}
	return true
}

// allow applies the per-subject rate limit. A limiter outage lets the request through.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, route, subject string) bool {
	if s.limiter == nil || subject == "" {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), redis.SubjectKey(route, subject), s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.RateWindow.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK
	for name, check := range s.health {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	var req vaultRequest
	if !decode(w, r, &req) || !requireBusiness(w, req.BusinessID) {
		return
	}
	pm := req.PaymentMethod
	vaultID, err := s.svc.Vaults.EnsureVault(r.Context(), req.BusinessID, pm.card(), pm.Billing.model())
	if err != nil {
		s.logFailure(r, "vault", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultResponse{Success: true, VaultID: vaultID})
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if !decode(w, r, &req) {
		return
	}
	subject := req.BusinessID
	if subject == "" {
		subject = req.CustomerEmail
	}
	if !s.allow(w, r, "charge", subject) {
		return
	}

	res, err := s.svc.Charges.Charge(r.Context(), req.attempt(r.Header.Get(idempotencyHeader)))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newChargeResponse(res))
	case res != nil && res.Success:
		// money moved but the business was not updated
		s.logFailure(r, "charge", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:         "payment captured but subscription not updated",
			TransactionID: res.TransactionID,
		})
	case res != nil:
		if releasable(res) {
			releaseKey(w)
		}
		writeJSON(w, statusFor(err), newChargeResponse(res))
	default:
		s.logFailure(r, "charge", err)
		writeError(w, err)
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req businessRequest
	if !decode(w, r, &req) || !requireBusiness(w, req.BusinessID) {
		return
	}
	out, err := s.svc.Subscriptions.Cancel(r.Context(), req.BusinessID)
	if err != nil {
		s.logFailure(r, "cancel", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		Success:           true,
		Message:           out.Message,
		ProviderCancelled: out.ProviderCancelled,
		EntitledUntil:     out.EntitledUntil,
	})
}

func (s *Server) handleUpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentMethodRequest
	if !decode(w, r, &req) || !requireBusiness(w, req.BusinessID) {
		return
	}
	pm := req.PaymentMethod
	last4, err := s.svc.Vaults.UpdatePaymentMethod(r.Context(), req.BusinessID, pm.card(), pm.Billing.model())
	if err != nil {
		s.logFailure(r, "update_payment_method", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updatePaymentMethodResponse{Success: true, Last4: last4})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req upgradeRequest
	if !decode(w, r, &req) || !requireBusiness(w, req.BusinessID) {
		return
	}
	if !s.allow(w, r, "upgrade-plan", req.BusinessID) {
		return
	}

	out, err := s.svc.Plans.ChangePlan(r.Context(), req.change(r.Header.Get(idempotencyHeader)))
	if err != nil {
		s.logFailure(r, "upgrade_plan", err)
		if out != nil && out.Charge != nil && out.Charge.Success {
			writeJSON(w, http.StatusInternalServerError, errorBody{
				Error:         "payment captured but plan not updated",
				TransactionID: out.Charge.TransactionID,
			})
			return
		}
		if out != nil && releasable(out.Charge) {
			releaseKey(w)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upgradeResponse{
		Success:       out.Success,
		TransactionID: out.TransactionID,
		NewPlan:       out.NewPlan,
		UpgradeAmount: out.UpgradeAmount,
		DisplayAmount: model.FormatMajor(out.UpgradeAmount),
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	b, rec, err := s.svc.Subscriptions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionResponse(b, rec))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.svc.Subscriptions.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			ID:            e.ID,
			Type:          string(e.Type),
			Status:        e.Status,
			TransactionID: e.TransactionID,
			Amount:        e.Amount,
			Currency:      e.Currency,
			CreatedAt:     e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// logFailure logs server-side failures; client errors stay at debug.
func (s *Server) logFailure(r *http.Request, op string, err error) {
	l := logging.With(r.Context(), s.log)
	status := statusFor(err)
	ev := l.Debug()
	if status >= http.StatusInternalServerError {
		ev = l.Error()
	}
	var nre *domain.VaultNotRecordedError
	if errors.As(err, &nre) {
		ev = ev.Bool("critical", true).Str("vault_id", nre.VaultID)
	}
	ev.Err(err).Str("op", op).Str("caller", callerFrom(r.Context())).Int("status", status).Msgf("%s failed", op)
}
