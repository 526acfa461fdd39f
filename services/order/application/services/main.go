package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ghuser/fulfillment/pkg/app"
	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	notifrepos "github.com/ghuser/fulfillment/services/notification/domain/repositories"
	notifpg "github.com/ghuser/fulfillment/services/notification/infrastructure/persistence/postgres"
	paymentrepos "github.com/ghuser/fulfillment/services/payment/domain/repositories"
	paymentpg "github.com/ghuser/fulfillment/services/payment/infrastructure/persistence/postgres"
)

// Services is the application-layer service container for the order API.
// The payment and notification repositories are read-only here: the API
// surfaces their records per order, but only the bus consumers write them.
type Services struct {
	Order         *OrderService
	Payments      paymentrepos.PaymentRepository
	Notifications notifrepos.NotificationRepository
}

// New wires order application services with infrastructure from the
// Application container.
func New(a *app.Application) *Services {
	store := eventstore.NewPostgresStore(a.Db, a.Logger)
	emitter := events.NewTxEmitter(a.Db, store, a.EventBus)
	return &Services{
		Order:         NewOrderService(store, emitter, a.Logger),
		Payments:      paymentpg.NewPaymentRepository(a.Db),
		Notifications: notifpg.NewNotificationRepository(a.Db),
	}
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return id, nil
}
