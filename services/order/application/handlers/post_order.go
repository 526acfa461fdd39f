package handlers

import (
	"net/http"
	"time"

	"github.com/ghuser/fulfillment/pkg/errhttp"
	"github.com/ghuser/fulfillment/pkg/httpx"
	pkgvalidator "github.com/ghuser/fulfillment/pkg/validator"
	appsvcs "github.com/ghuser/fulfillment/services/order/application/services"
)

// OrderItemRequest is one order line in the creation request.
type OrderItemRequest struct {
	ProductID string `json:"productId" validate:"required,min=1,max=255"`
	UnitPrice int64  `json:"unitPrice" validate:"required,gte=1"`
	Currency  string `json:"currency" validate:"required,len=3,alpha"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// CreateOrderRequest is the request body for POST /orders.
type CreateOrderRequest struct {
	CustomerID string             `json:"customerId" validate:"required,min=1,max=255"`
	Items      []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// MoneyResponse renders an amount in minor units.
type MoneyResponse struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrderResponse is returned on successful order creation. The order is
// accepted, not confirmed: payment and notification run asynchronously.
type CreateOrderResponse struct {
	OrderID       string        `json:"orderId"`
	CustomerID    string        `json:"customerId"`
	Status        string        `json:"status"`
	Total         MoneyResponse `json:"total"`
	CorrelationID string        `json:"correlationId"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// PostOrderHandler handles POST /orders requests.
type PostOrderHandler struct {
	svc *appsvcs.Services
}

// NewPostOrderHandler returns a PostOrderHandler backed by the given services.
func NewPostOrderHandler(svc *appsvcs.Services) *PostOrderHandler {
	return &PostOrderHandler{svc: svc}
}

// Execute creates a new order and starts its fulfillment saga.
func (h *PostOrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[CreateOrderRequest](w, r)
	if !ok {
		return
	}

	items := make([]appsvcs.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, appsvcs.ItemInput{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Currency:  it.Currency,
			Quantity:  it.Quantity,
		})
	}

	order, err := h.svc.Order.Create(r.Context(), req.CustomerID, items)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.Accepted(w, "/api/orders/"+order.ID, CreateOrderResponse{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		Total:         MoneyResponse{Amount: order.Total.Amount, Currency: order.Total.Currency},
		CorrelationID: order.CorrelationID.String(),
		CreatedAt:     order.CreatedAt,
	})
}
