package postgres

import (
	"context"
	"fmt"

	"github.com/ghuser/fulfillment/pkg/database"
	"github.com/ghuser/fulfillment/services/notification/domain/models"
)

// NotificationRepository implements repositories.NotificationRepository
// against PostgreSQL.
type NotificationRepository struct {
	db *database.Database
}

// NewNotificationRepository returns a repository backed by the given pool.
func NewNotificationRepository(db *database.Database) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Save inserts a new delivery record.
func (r *NotificationRepository) Save(ctx context.Context, n *models.Notification) error {
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO notifications (notification_id, order_id, event_id, channel, recipient,
			subject, status, attempt_count, last_error, provider_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.OrderID, n.EventID, n.Channel, n.Recipient,
		n.Subject, string(n.Status), n.AttemptCount, n.LastError, n.ProviderReference,
		n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Update persists delivery progress.
func (r *NotificationRepository) Update(ctx context.Context, n *models.Notification) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE notifications
		SET status = $2, attempt_count = $3, last_error = $4, provider_reference = $5, updated_at = $6
		WHERE notification_id = $1`,
		n.ID, string(n.Status), n.AttemptCount, n.LastError, n.ProviderReference, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	return nil
}

// FindByOrderID returns all delivery records for the order, oldest first.
func (r *NotificationRepository) FindByOrderID(ctx context.Context, orderID string) ([]*models.Notification, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT notification_id, order_id, event_id, channel, recipient,
			subject, status, attempt_count, last_error, provider_reference, created_at, updated_at
		FROM notifications WHERE order_id = $1
		ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*models.Notification
	for rows.Next() {
		var (
			n      models.Notification
			status string
		)
		if err := rows.Scan(&n.ID, &n.OrderID, &n.EventID, &n.Channel, &n.Recipient,
			&n.Subject, &status, &n.AttemptCount, &n.LastError, &n.ProviderReference,
			&n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Status = models.Status(status)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
