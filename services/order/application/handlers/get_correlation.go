package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/fulfillment/pkg/httpx"
	appsvcs "github.com/ghuser/fulfillment/services/order/application/services"
)

// CorrelationResponse is the cross-aggregate trace of one business
// transaction: every event sharing the correlation id, in occurrence order.
type CorrelationResponse struct {
	CorrelationID string          `json:"correlationId"`
	Events        []EventResponse `json:"events"`
}

// GetCorrelationHandler handles GET /correlations/{id} requests.
type GetCorrelationHandler struct {
	svc *appsvcs.Services
}

// NewGetCorrelationHandler returns a GetCorrelationHandler backed by the given services.
func NewGetCorrelationHandler(svc *appsvcs.Services) *GetCorrelationHandler {
	return &GetCorrelationHandler{svc: svc}
}

// Execute traces a saga across order, payment and notification aggregates.
func (h *GetCorrelationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "id")

	events, err := h.svc.Order.Trace(r.Context(), correlationID)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	httpx.JSON(w, http.StatusOK, CorrelationResponse{
		CorrelationID: correlationID,
		Events:        toEventResponses(events),
	})
}
