package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/fulfillment/pkg/errhttp"
	"github.com/ghuser/fulfillment/pkg/httpx"
	appsvcs "github.com/ghuser/fulfillment/services/order/application/services"
)

// PaymentResponse renders a payment record.
type PaymentResponse struct {
	PaymentID        string        `json:"paymentId"`
	OrderID          string        `json:"orderId"`
	Status           string        `json:"status"`
	Amount           MoneyResponse `json:"amount"`
	GatewayReference string        `json:"gatewayReference,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// NotificationResponse renders a notification delivery record.
type NotificationResponse struct {
	NotificationID    string    `json:"notificationId"`
	OrderID           string    `json:"orderId"`
	Channel           string    `json:"channel"`
	Recipient         string    `json:"recipient"`
	Subject           string    `json:"subject"`
	Status            string    `json:"status"`
	AttemptCount      int       `json:"attemptCount"`
	LastError         string    `json:"lastError,omitempty"`
	ProviderReference string    `json:"providerReference,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// GetOrderPaymentsHandler handles GET /orders/{id}/payments requests.
type GetOrderPaymentsHandler struct {
	svc *appsvcs.Services
}

// NewGetOrderPaymentsHandler returns a GetOrderPaymentsHandler backed by the given services.
func NewGetOrderPaymentsHandler(svc *appsvcs.Services) *GetOrderPaymentsHandler {
	return &GetOrderPaymentsHandler{svc: svc}
}

// Execute returns the payment record for an order.
func (h *GetOrderPaymentsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	payment, err := h.svc.Payments.GetByOrderID(r.Context(), orderID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, PaymentResponse{
		PaymentID:        payment.ID,
		OrderID:          payment.OrderID,
		Status:           string(payment.Status),
		Amount:           MoneyResponse{Amount: payment.Amount.Amount, Currency: payment.Amount.Currency},
		GatewayReference: payment.GatewayReference,
		CreatedAt:        payment.CreatedAt,
		UpdatedAt:        payment.UpdatedAt,
	})
}

// GetOrderNotificationsHandler handles GET /orders/{id}/notifications requests.
type GetOrderNotificationsHandler struct {
	svc *appsvcs.Services
}

// NewGetOrderNotificationsHandler returns a GetOrderNotificationsHandler backed by the given services.
func NewGetOrderNotificationsHandler(svc *appsvcs.Services) *GetOrderNotificationsHandler {
	return &GetOrderNotificationsHandler{svc: svc}
}

// Execute returns all notification delivery records for an order.
func (h *GetOrderNotificationsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	records, err := h.svc.Notifications.FindByOrderID(r.Context(), orderID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	out := make([]NotificationResponse, 0, len(records))
	for _, n := range records {
		out = append(out, NotificationResponse{
			NotificationID:    n.ID,
			OrderID:           n.OrderID,
			Channel:           n.Channel,
			Recipient:         n.Recipient,
			Subject:           n.Subject,
			Status:            string(n.Status),
			AttemptCount:      n.AttemptCount,
			LastError:         n.LastError,
			ProviderReference: n.ProviderReference,
			CreatedAt:         n.CreatedAt,
			UpdatedAt:         n.UpdatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
