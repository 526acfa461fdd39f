package channels

import (
	"context"

	"github.com/google/uuid"

	notifdomain "github.com/ghuser/fulfillment/services/notification/domain"
	"github.com/ghuser/fulfillment/pkg/logger"
)

// LogChannel writes messages to the structured log instead of a provider.
// Used in local development, where no email provider is configured.
type LogChannel struct {
	log logger.Logger
}

// NewLogChannel returns a LogChannel writing to log.
func NewLogChannel(log logger.Logger) *LogChannel {
	return &LogChannel{log: log}
}

// Name implements domain.Channel.
func (c *LogChannel) Name() string { return "log" }

// Send logs the message and always succeeds.
func (c *LogChannel) Send(ctx context.Context, recipient string, content notifdomain.Content) (notifdomain.ProviderReference, error) {
	c.log.InfoContext(ctx, "notification (log channel)",
		"recipient", recipient,
		"subject", content.Subject,
		"body", content.Body,
	)
	return notifdomain.ProviderReference("log-" + uuid.NewString()), nil
}
