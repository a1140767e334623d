// Package gateway is the outbound boundary to the external payment processor.
// The core treats gateway failures as opaque and retryable by the caller.
package gateway

import (
	"context"
	"fmt"
)

// Intent is the processor's handle for an in-progress charge attempt. The
// client secret is handed back to the booking caller so it can complete the
// charge; this core never uses it.
type Intent struct {
	ID           string
	ClientSecret string
}

type Client interface {
	// CreateIntent registers a charge attempt for amount in integer minor
	// units (cents) and returns the intent handle.
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)

	// Refund reverses the full charge behind an intent.
	Refund(ctx context.Context, intentID string) (refundID string, err error)
}

// Error is an opaque processor-side failure, distinguishable from validation
// and conflict errors by type.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment gateway: %s (status %d)", e.Message, e.StatusCode)
}
