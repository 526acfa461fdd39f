package domain

import (
	"context"
	"errors"

	"github.com/ghuser/fulfillment/pkg/breaker"
)

// Gateway error taxonomy. Permanent errors never retry; transient errors
// retry with backoff and count toward the circuit breaker.
var (
	// ErrDeclined — the gateway rejected the charge (insufficient funds,
	// fraud block). Permanent.
	ErrDeclined = errors.New("payment declined")

	// ErrInvalidMethod — the payment method cannot be charged at all.
	// Permanent.
	ErrInvalidMethod = errors.New("invalid payment method")

	// ErrGatewayUnavailable — the gateway returned a server error. Transient.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrPaymentNotFound indicates no payment record exists for the order.
	ErrPaymentNotFound = errors.New("payment not found")
)

// IsPermanent reports whether err is a business rejection that must surface
// as a PaymentFailed event instead of being retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDeclined) || errors.Is(err, ErrInvalidMethod)
}

// IsTransient reports whether err is retryable: gateway server errors,
// per-call timeouts, and breaker fast-fails.
func IsTransient(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, breaker.ErrOpen)
}
