package models

import "fmt"

// OrderItem is one line of an order: a product, a unit price and a quantity.
type OrderItem struct {
	ProductID string `json:"productId"`
	UnitPrice Money  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// NewOrderItem constructs a valid OrderItem.
func NewOrderItem(productID string, unitPrice Money, quantity int) (OrderItem, error) {
	if productID == "" {
		return OrderItem{}, fmt.Errorf("product id must not be empty")
	}
	if quantity < 1 {
		return OrderItem{}, fmt.Errorf("quantity must be at least 1, got %d", quantity)
	}
	return OrderItem{ProductID: productID, UnitPrice: unitPrice, Quantity: quantity}, nil
}

// Subtotal is unit price times quantity.
func (i OrderItem) Subtotal() Money {
	return i.UnitPrice.Multiply(i.Quantity)
}
