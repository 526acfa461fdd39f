package errhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	orderdomain "github.com/ghuser/fulfillment/services/order/domain"
	paymentdomain "github.com/ghuser/fulfillment/services/payment/domain"
)

func TestWriteError_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ErrOrderNotFound", orderdomain.ErrOrderNotFound, http.StatusNotFound},
		{"ErrPaymentNotFound", paymentdomain.ErrPaymentNotFound, http.StatusNotFound},
		{"ErrInvalidTransition", orderdomain.ErrInvalidTransition, http.StatusConflict},
		{"ErrEmptyOrder", orderdomain.ErrEmptyOrder, http.StatusUnprocessableEntity},
		{"ErrCurrencyMismatch", orderdomain.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
		{"wrapped ErrOrderNotFound", fmt.Errorf("get order: %w", orderdomain.ErrOrderNotFound), http.StatusNotFound},
		{"wrapped ErrInvalidTransition", fmt.Errorf("%w: CONFIRMED to CREATED", orderdomain.ErrInvalidTransition), http.StatusConflict},
		{"unknown error", errors.New("something unexpected"), http.StatusInternalServerError},
		{"generic wrapped error", fmt.Errorf("context: %w", errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestWriteError_JSONBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, orderdomain.ErrOrderNotFound)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if _, ok := body["error"]; !ok {
		t.Fatal("response body missing 'error' key")
	}
}

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, orderdomain.ErrOrderNotFound)

	ct := w.Header().Get("Content-Type")
	if ct == "" {
		t.Fatal("Content-Type header not set")
	}
}
