// Package gateway contains payment gateway adapters. The core depends only
// on the domain.Gateway contract; this package maps one concrete provider's
// HTTP API onto it.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	paymentdomain "github.com/ghuser/fulfillment/services/payment/domain"
	ordermodels "github.com/ghuser/fulfillment/services/order/domain/models"
)

// HTTPGateway charges via a provider's REST endpoint. The idempotency key is
// sent both in the body and the Idempotency-Key header so the provider can
// dedup retried charges.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway returns an HTTPGateway for the given provider base URL.
func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second, // per-call deadlines come from ctx
		},
	}
}

type chargeRequest struct {
	OrderID        string `json:"orderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type chargeResponse struct {
	Reference string `json:"reference"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Charge posts the charge and classifies the response into the domain's
// error taxonomy: 402 declined, 422 invalid method, 5xx unavailable.
func (g *HTTPGateway) Charge(ctx context.Context, orderID string, amount ordermodels.Money, idempotencyKey string) (paymentdomain.GatewayReference, error) {
	body, err := json.Marshal(chargeRequest{
		OrderID:        orderID,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: marshal charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(req)
	if err != nil {
		// Includes context deadline exceeded — the processor classifies
		// timeouts as transient.
		return "", fmt.Errorf("gateway: charge: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var out chargeResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("gateway: decode response: %w", decodeErr)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return paymentdomain.GatewayReference(out.Reference), nil
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", fmt.Errorf("%w: %s", paymentdomain.ErrDeclined, out.Message)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", paymentdomain.ErrInvalidMethod, out.Message)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
	default:
		return "", fmt.Errorf("gateway: unexpected status %d: %s", resp.StatusCode, out.Message)
	}
}
