package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Subscription state machine
	ErrIllegalTransition  = errors.New("illegal subscription transition")
	ErrStaleState         = errors.New("subscription state changed concurrently")
	ErrSamePrice          = errors.New("new plan price equals current price")
	ErrInvalidDiscount    = errors.New("discount code is invalid, expired or exhausted")
	ErrSubscriptionExists = errors.New("business already has a provider subscription")

	// Vault
	ErrVaultExists         = errors.New("vault already recorded for provider")
	ErrVaultCreationFailed = errors.New("vault creation failed")
	ErrVaultNotRecorded    = errors.New("vault exists at provider but is not recorded")

	// Provider
	ErrDeclined         = errors.New("payment declined")
	ErrProvider         = errors.New("payment provider error")
	ErrProviderNotFound = errors.New("payment provider not configured")

	// Webhooks
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrEventIgnored     = errors.New("webhook event ignored")
)

// ValidationError reports a malformed request field. It matches ErrInvalidArgument.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// VaultNotRecordedError carries the provider-side vault id that could not be
// persisted so the caller can surface it for manual reconciliation.
type VaultNotRecordedError struct {
	Provider string
	VaultID  string
	Err      error
}

func (e *VaultNotRecordedError) Error() string {
	return fmt.Sprintf("vault %s created at %s but not recorded: %v", e.VaultID, e.Provider, e.Err)
}

func (e *VaultNotRecordedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrVaultNotRecorded}
	}
	return []error{ErrVaultNotRecorded, e.Err}
}
