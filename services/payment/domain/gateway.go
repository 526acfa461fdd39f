package domain

import (
	"context"

	ordermodels "github.com/ghuser/fulfillment/services/order/domain/models"
)

// GatewayReference identifies a charge on the external gateway's side.
type GatewayReference string

// Gateway is the external payment provider. Implementations must honor the
// idempotency key: charging the same key twice must not double-charge.
//
// Errors are classified with IsPermanent/IsTransient; anything else is
// treated as transient.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount ordermodels.Money, idempotencyKey string) (GatewayReference, error)
}

// IdempotencyKey derives the gateway idempotency key for an order. It is
// deterministic so every retry of the same order charges the same key.
func IdempotencyKey(orderID string) string {
	return "charge-" + orderID
}
