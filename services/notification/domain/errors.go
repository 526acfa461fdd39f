package domain

import "errors"

// Sentinel errors for the notification domain. Use errors.Is() to check these.
var (
	// ErrNotificationNotFound indicates no notification record exists.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidRecipient — the provider rejected the recipient address.
	// Permanent: retrying the same address cannot succeed.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrChannelUnavailable — the provider is down or overloaded. Transient.
	ErrChannelUnavailable = errors.New("notification channel unavailable")
)

// IsPermanent reports whether err is a business rejection not worth retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRecipient)
}
