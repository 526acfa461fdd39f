package domain

import "errors"

// Sentinel errors for the order domain. Use errors.Is() to check these.
var (
	// ErrOrderNotFound indicates the order has no event stream.
	ErrOrderNotFound = errors.New("order not found")

	// ErrEmptyOrder indicates an order was created without items.
	ErrEmptyOrder = errors.New("order must contain at least one item")

	// ErrInvalidTransition indicates an event arrived for an order whose
	// current status does not allow the transition.
	ErrInvalidTransition = errors.New("invalid order state transition")

	// ErrCurrencyMismatch indicates arithmetic across different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
)
