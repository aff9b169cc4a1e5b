package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"directory-billing/internal/domain"
	"directory-billing/internal/infra/logging"
)

// handleWebhook answers 200 for every verified delivery, including ones
// that were ignored or matched no business, so providers stop retrying.
// Storage failures answer 500 so the provider retries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	l := logging.With(logging.WithProvider(r.Context(), provider), s.log)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	out, err := s.svc.Webhooks.Handle(r.Context(), provider, payload, headers)
	if err != nil {
		status := statusFor(err)
		ev := l.Warn()
		if status >= http.StatusInternalServerError {
			ev = l.Error()
		}
		ev.Err(err).Int("status", status).Msg("webhook not processed")
		if errors.Is(err, domain.ErrInvalidSignature) {
			writeJSON(w, status, errorBody{Error: "invalid signature"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Outcome: string(out)})
}
