// File: internal/infra/api/errors.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"directory-billing/internal/domain"
)

type errorBody struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Field         string `json:"field,omitempty"`
	VaultID       string `json:"vault_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// statusFor maps domain errors to HTTP status codes. Order matters: a
// not-recorded vault also wraps the cause that made the write fail.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrVaultNotRecorded):
		return http.StatusInternalServerError
	case errors.As(err, &verr), errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidDiscount), errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStaleState), errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrSamePrice), errors.Is(err, domain.ErrSubscriptionExists),
		errors.Is(err, domain.ErrVaultExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrProvider), errors.Is(err, domain.ErrVaultCreationFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorBodyFor(err error, status int) errorBody {
	body := errorBody{Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	var nre *domain.VaultNotRecordedError
	if errors.As(err, &nre) {
		body.VaultID = nre.VaultID
		return body
	}
	if status == http.StatusInternalServerError {
		// storage and driver errors stay in the logs
		body.Error = "internal error"
	}
	return body
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeJSON(w, status, errorBodyFor(err, status))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
