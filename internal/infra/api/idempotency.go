package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/infra/logging"
	"directory-billing/internal/infra/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// recorder captures the response so it can be stored for replays.
type recorder struct {
	http.ResponseWriter
	status  int
	body    bytes.Buffer
	release bool
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// releaseKey frees the key once the response is written. Handlers call it
// for provider failures that left no transaction behind, so a retry with
// the same key reaches the provider again.
func releaseKey(w http.ResponseWriter) {
	if rec, ok := w.(*recorder); ok {
		rec.release = true
	}
}

// releasable reports a failed charge worth retrying under the same key.
func releasable(res *model.ChargeResult) bool {
	return res != nil && !res.Success && res.Retryable && res.TransactionID == ""
}

// idempotent replays the first response for a repeated Idempotency-Key.
// Requests rejected before reaching a provider, and retryable provider
// failures with no transaction, free the key again.
func (s *Server) idempotent(scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if s.idem == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 128 {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "idempotency key too long", Field: idempotencyHeader})
				return
			}
			ctx := r.Context()
			l := logging.With(ctx, s.log)
			scoped := scope + ":" + callerFrom(ctx)

			stored, err := s.idem.Begin(ctx, scoped, key)
			switch {
			case errors.Is(err, redis.ErrInFlight):
				writeJSON(w, http.StatusConflict, errorBody{Error: redis.ErrInFlight.Error()})
				return
			case err != nil:
				l.Warn().Err(err).Msg("idempotency cache unavailable, processing without it")
				next.ServeHTTP(w, r)
				return
			case stored != nil:
				w.Header().Set(replayedHeader, "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// detach from the request so a disconnect does not leave the key in flight
			bg := context.WithoutCancel(ctx)
			if rec.release || retryable(rec.status) {
				if err := s.idem.Abort(bg, scoped, key); err != nil {
					l.Warn().Err(err).Msg("could not release idempotency key")
				}
				return
			}
			if err := s.idem.Complete(bg, scoped, key, redis.StoredResponse{Status: rec.status, Body: bytes.TrimSpace(rec.body.Bytes())}); err != nil {
				l.Error().Err(err).Msg("could not store idempotent response")
			}
		})
	}
}

// retryable reports statuses produced before any provider call.
func retryable(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound,
		http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return false
}
