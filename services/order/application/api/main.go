package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ghuser/fulfillment/pkg/app"
	"github.com/ghuser/fulfillment/services/order/application/handlers"
	appsvcs "github.com/ghuser/fulfillment/services/order/application/services"
)

// OrderRoutes registers the order command and read endpoints on the provided
// chi router.
func OrderRoutes(r chi.Router, a *app.Application) {
	svcs := appsvcs.New(a)
	r.Group(func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handlers.NewPostOrderHandler(svcs).Execute)
			r.Get("/{id}", handlers.NewGetOrderHandler(svcs).Execute)
			r.Post("/{id}/cancel", handlers.NewCancelOrderHandler(svcs).Execute)
			r.Get("/{id}/payments", handlers.NewGetOrderPaymentsHandler(svcs).Execute)
			r.Get("/{id}/notifications", handlers.NewGetOrderNotificationsHandler(svcs).Execute)
		})
		r.Route("/correlations", func(r chi.Router) {
			r.Get("/{id}", handlers.NewGetCorrelationHandler(svcs).Execute)
		})
	})
}
