package models

import (
	"errors"
	"testing"
	"time"

	domain "github.com/ghuser/fulfillment/services/order/domain"
)

func mustMoney(t *testing.T, amount int64, currency string) Money {
	t.Helper()
	m, err := NewMoney(amount, currency)
	if err != nil {
		t.Fatalf("new money: %v", err)
	}
	return m
}

func testItems(t *testing.T) []OrderItem {
	t.Helper()
	a, err := NewOrderItem("product-1", mustMoney(t, 1250, "USD"), 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewOrderItem("product-2", mustMoney(t, 500, "USD"), 1)
	if err != nil {
		t.Fatal(err)
	}
	return []OrderItem{a, b}
}

// TestNewOrder verifies the creation command computes the total and starts
// with a fresh correlation id.
func TestNewOrder(t *testing.T) {
	order, err := NewOrder("customer-1", testItems(t))
	if err != nil {
		t.Fatalf("new order: %v", err)
	}

	if order.Status != StatusCreated {
		t.Errorf("expected CREATED, got %s", order.Status)
	}
	if want := int64(2*1250 + 500); order.Total.Amount != want {
		t.Errorf("expected total %d, got %d", want, order.Total.Amount)
	}
	if order.Total.Currency != "USD" {
		t.Errorf("expected USD total, got %s", order.Total.Currency)
	}
	if order.CorrelationID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a fresh correlation id")
	}
	if order.ID == "" {
		t.Error("expected a generated order id")
	}
}

// TestNewOrder_EmptyItems verifies an order without lines is rejected.
func TestNewOrder_EmptyItems(t *testing.T) {
	_, err := NewOrder("customer-1", nil)
	if !errors.Is(err, domain.ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
}

// TestNewOrder_CurrencyMismatch verifies mixed currencies fail the total.
func TestNewOrder_CurrencyMismatch(t *testing.T) {
	usd, _ := NewOrderItem("product-1", mustMoney(t, 100, "USD"), 1)
	eur, _ := NewOrderItem("product-2", mustMoney(t, 100, "EUR"), 1)

	_, err := NewOrder("customer-1", []OrderItem{usd, eur})
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}

// TestCanTransition covers the whole state machine.
func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusPaymentPending, true},
		{StatusCreated, StatusCancelled, true},
		{StatusCreated, StatusConfirmed, false},
		{StatusPaymentPending, StatusConfirmed, true},
		{StatusPaymentPending, StatusPaymentFailed, true},
		{StatusPaymentPending, StatusCancelled, true},
		{StatusPaymentPending, StatusCreated, false},
		{StatusConfirmed, StatusCancelled, false},
		{StatusPaymentFailed, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// TestStatus_IsTerminal verifies terminal states admit no transitions.
func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusConfirmed, StatusPaymentFailed, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusPaymentPending} {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

// TestOrder_Transition verifies invalid transitions fail with the sentinel
// and leave the order unchanged.
func TestOrder_Transition(t *testing.T) {
	order, err := NewOrder("customer-1", testItems(t))
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	if err := order.Transition(StatusPaymentPending, now); err != nil {
		t.Fatalf("valid transition failed: %v", err)
	}
	if order.Status != StatusPaymentPending {
		t.Fatalf("expected PAYMENT_PENDING, got %s", order.Status)
	}

	err = order.Transition(StatusCreated, now)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if order.Status != StatusPaymentPending {
		t.Error("failed transition must not change state")
	}
}

// TestMoney covers construction, arithmetic and formatting.
func TestMoney(t *testing.T) {
	t.Run("negative amount rejected", func(t *testing.T) {
		if _, err := NewMoney(-1, "USD"); err == nil {
			t.Error("expected error for negative amount")
		}
	})

	t.Run("currency normalized", func(t *testing.T) {
		m, err := NewMoney(100, " usd ")
		if err != nil {
			t.Fatal(err)
		}
		if m.Currency != "USD" {
			t.Errorf("expected USD, got %s", m.Currency)
		}
	})

	t.Run("bad currency rejected", func(t *testing.T) {
		if _, err := NewMoney(100, "US"); err == nil {
			t.Error("expected error for 2-letter currency")
		}
	})

	t.Run("add mismatched currencies", func(t *testing.T) {
		usd := mustMoney(t, 100, "USD")
		eur := mustMoney(t, 100, "EUR")
		if _, err := usd.Add(eur); !errors.Is(err, domain.ErrCurrencyMismatch) {
			t.Errorf("expected ErrCurrencyMismatch, got %v", err)
		}
	})

	t.Run("multiply", func(t *testing.T) {
		if got := mustMoney(t, 1250, "USD").Multiply(3); got.Amount != 3750 {
			t.Errorf("expected 3750, got %d", got.Amount)
		}
	})

	t.Run("string", func(t *testing.T) {
		if got := mustMoney(t, 1205, "USD").String(); got != "12.05 USD" {
			t.Errorf("expected 12.05 USD, got %q", got)
		}
	})
}
