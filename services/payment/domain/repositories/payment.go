package repositories

import (
	"context"

	"github.com/ghuser/fulfillment/services/payment/domain/models"
)

// PaymentRepository persists payment records. This is a derived read model:
// the authoritative history is the event stream.
type PaymentRepository interface {
	Save(ctx context.Context, payment *models.Payment) error

	// Update persists status/gateway-reference changes.
	Update(ctx context.Context, payment *models.Payment) error

	// GetByOrderID returns the payment for an order, or ErrPaymentNotFound.
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
}
