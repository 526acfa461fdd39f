package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/fulfillment/pkg/errhttp"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/httpx"
	appsvcs "github.com/ghuser/fulfillment/services/order/application/services"
)

// EventResponse renders one stored envelope in API responses.
type EventResponse struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Version       int64           `json:"version"`
	CorrelationID string          `json:"correlationId"`
	CausationID   *string         `json:"causationId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderResponse is the folded current state plus full event history.
type OrderResponse struct {
	OrderID       string          `json:"orderId"`
	CustomerID    string          `json:"customerId"`
	Status        string          `json:"status"`
	Total         MoneyResponse   `json:"total"`
	Version       int64           `json:"version"`
	CorrelationID string          `json:"correlationId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	History       []EventResponse `json:"history"`
}

// GetOrderHandler handles GET /orders/{id} requests.
type GetOrderHandler struct {
	svc *appsvcs.Services
}

// NewGetOrderHandler returns a GetOrderHandler backed by the given services.
func NewGetOrderHandler(svc *appsvcs.Services) *GetOrderHandler {
	return &GetOrderHandler{svc: svc}
}

// Execute folds the order's event stream and returns state plus history.
func (h *GetOrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	order, history, err := h.svc.Order.Get(r.Context(), orderID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, OrderResponse{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		Total:         MoneyResponse{Amount: order.Total.Amount, Currency: order.Total.Currency},
		Version:       order.Version,
		CorrelationID: order.CorrelationID.String(),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		History:       toEventResponses(history),
	})
}

func toEventResponses(events []eventstore.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp := EventResponse{
			EventID:       e.EventID.String(),
			EventType:     e.EventType,
			AggregateID:   e.AggregateID,
			AggregateType: e.AggregateType,
			Version:       e.Version,
			CorrelationID: e.CorrelationID.String(),
			OccurredAt:    e.OccurredAt,
			Payload:       e.Payload,
		}
		if e.CausationID != nil {
			s := e.CausationID.String()
			resp.CausationID = &s
		}
		out = append(out, resp)
	}
	return out
}
