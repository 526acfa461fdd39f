package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the notification delivery lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
	StatusRetrying Status = "RETRYING"
)

// Notification is the delivery record for one rendered message. Delivery
// state never feeds back into order or payment state — it is purely a
// delivery-layer concern kept for retry and audit.
type Notification struct {
	ID                string
	OrderID           string
	EventID           uuid.UUID
	Channel           string
	Recipient         string
	Subject           string
	Status            Status
	AttemptCount      int
	LastError         string
	ProviderReference string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewNotification returns a PENDING record for the given event and channel.
func NewNotification(orderID string, eventID uuid.UUID, channel, recipient, subject string) *Notification {
	now := time.Now().UTC()
	return &Notification{
		ID:        "notification-" + uuid.NewString(),
		OrderID:   orderID,
		EventID:   eventID,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
