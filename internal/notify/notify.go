// Package notify delivers the batched notification of a run.
package notify

import (
	"context"
	"errors"
)

// Status is the outcome of one delivery attempt.
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// ErrDelivery wraps every failed delivery.
var ErrDelivery = errors.New("delivery failed")

// Notifier sends a rendered notification on one channel. A skipped
// delivery returns StatusSkipped and a nil error; a failed one returns
// StatusError and an error wrapping ErrDelivery.
type Notifier interface {
	Channel() string
	Deliver(ctx context.Context, subject, htmlBody string) (Status, error)
}
