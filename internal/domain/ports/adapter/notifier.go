package adapter

import "context"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityCritical Severity = "critical"
)

// Notification is an operator-facing message (receipts, inconsistency alerts).
// Customer email stays with an external sender.
type Notification struct {
	Severity   Severity
	BusinessID string
	Title      string
	Body       string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
