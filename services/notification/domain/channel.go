package domain

import "context"

// ProviderReference identifies a delivery on the provider's side.
type ProviderReference string

// Content is a rendered notification ready to send.
type Content struct {
	Subject string
	Body    string
}

// Channel is the external send provider (email, SMS, ...). The core depends
// only on this contract. A Send that does not complete within the caller's
// context deadline is treated as a transient failure.
type Channel interface {
	// Name tags ledger entries and notification records ("email", "sms").
	Name() string

	Send(ctx context.Context, recipient string, content Content) (ProviderReference, error)
}
