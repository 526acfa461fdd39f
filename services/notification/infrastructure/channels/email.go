// Package channels contains send-provider adapters. The dispatcher depends
// only on the domain.Channel contract; each adapter maps one concrete
// provider onto it.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	notifdomain "github.com/ghuser/fulfillment/services/notification/domain"
)

// EmailChannel sends through a transactional email provider's REST API.
type EmailChannel struct {
	baseURL string
	from    string
	client  *http.Client
}

// NewEmailChannel returns an EmailChannel posting to the given provider.
func NewEmailChannel(baseURL, from string) *EmailChannel {
	return &EmailChannel{
		baseURL: baseURL,
		from:    from,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second, // per-call deadlines come from ctx
		},
	}
}

// Name implements domain.Channel.
func (c *EmailChannel) Name() string { return "email" }

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

// Send posts the message and classifies the response: 400/422 invalid
// recipient (permanent), 5xx and 429 unavailable (transient).
func (c *EmailChannel) Send(ctx context.Context, recipient string, content notifdomain.Content) (notifdomain.ProviderReference, error) {
	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      recipient,
		Subject: content.Subject,
		Body:    content.Body,
	})
	if err != nil {
		return "", fmt.Errorf("email: marshal send: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("email: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("email: send: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var out sendResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("email: decode response: %w", decodeErr)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return notifdomain.ProviderReference(out.MessageID), nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", notifdomain.ErrInvalidRecipient, out.Message)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", notifdomain.ErrChannelUnavailable, resp.StatusCode)
	default:
		return "", fmt.Errorf("email: unexpected status %d: %s", resp.StatusCode, out.Message)
	}
}
