package repositories

import (
	"context"

	"github.com/ghuser/fulfillment/services/notification/domain/models"
)

// NotificationRepository persists delivery records. FAILED rows are the
// manual follow-up queue; nothing retries them automatically.
type NotificationRepository interface {
	Save(ctx context.Context, n *models.Notification) error

	// Update persists status, attempt count, last error and provider ref.
	Update(ctx context.Context, n *models.Notification) error

	// FindByOrderID returns all delivery records for an order.
	FindByOrderID(ctx context.Context, orderID string) ([]*models.Notification, error)
}
