package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/fulfillment/pkg/errhttp"
	"github.com/ghuser/fulfillment/pkg/httpx"
	appsvcs "github.com/ghuser/fulfillment/services/order/application/services"
)

// CancelOrderRequest is the optional request body for POST /orders/{id}/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrderHandler handles POST /orders/{id}/cancel requests.
type CancelOrderHandler struct {
	svc *appsvcs.Services
}

// NewCancelOrderHandler returns a CancelOrderHandler backed by the given services.
func NewCancelOrderHandler(svc *appsvcs.Services) *CancelOrderHandler {
	return &CancelOrderHandler{svc: svc}
}

// Execute cancels a non-terminal order. A terminal order gets 409.
func (h *CancelOrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req CancelOrderRequest
	// Body is optional; a missing or empty body means no reason given.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	if err := h.svc.Order.Cancel(r.Context(), orderID, req.Reason); err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.Accepted(w, "/api/orders/"+orderID, map[string]string{
		"orderId": orderID,
		"status":  "CANCELLED",
	})
}
