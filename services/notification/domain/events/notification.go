package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ghuser/fulfillment/pkg/eventstore"
)

// TopicNotifications is the bus topic carrying Notification aggregate events.
const TopicNotifications = "notifications"

// TypeNotificationSent tags a successful delivery.
const TypeNotificationSent = "NotificationSent"

// NotificationSentPayload records one delivered notification for audit.
type NotificationSentPayload struct {
	NotificationID    string `json:"notificationId"`
	OrderID           string `json:"orderId"`
	Channel           string `json:"channel"`
	Recipient         string `json:"recipient"`
	ProviderReference string `json:"providerReference"`
}

// NewNotificationSent builds the envelope for a delivered notification,
// caused by the business event it announced.
func NewNotificationSent(p NotificationSentPayload, correlationID, causedBy uuid.UUID) (eventstore.Event, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal notification sent: %w", err)
	}
	e := eventstore.New(TypeNotificationSent, p.NotificationID, eventstore.AggregateNotification, 1, correlationID, payload)
	return e.CausedBy(causedBy), nil
}
