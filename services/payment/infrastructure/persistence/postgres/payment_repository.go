package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ghuser/fulfillment/pkg/database"
	ordermodels "github.com/ghuser/fulfillment/services/order/domain/models"
	paymentdomain "github.com/ghuser/fulfillment/services/payment/domain"
	"github.com/ghuser/fulfillment/services/payment/domain/models"
)

// PaymentRepository implements repositories.PaymentRepository against PostgreSQL.
type PaymentRepository struct {
	db *database.Database
}

// NewPaymentRepository returns a PaymentRepository backed by the given pool.
func NewPaymentRepository(db *database.Database) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Save inserts a new payment record.
func (r *PaymentRepository) Save(ctx context.Context, p *models.Payment) error {
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO payments (payment_id, order_id, idempotency_key, amount, currency,
			status, gateway_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.OrderID, p.IdempotencyKey, p.Amount.Amount, p.Amount.Currency,
		string(p.Status), p.GatewayReference, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// Update persists status and gateway reference changes.
func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE payments
		SET status = $2, gateway_reference = $3, updated_at = $4
		WHERE payment_id = $1`,
		p.ID, string(p.Status), p.GatewayReference, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// GetByOrderID returns the payment for orderID or ErrPaymentNotFound.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	row := r.db.DB().QueryRowContext(ctx, `
		SELECT payment_id, order_id, idempotency_key, amount, currency,
			status, gateway_reference, created_at, updated_at
		FROM payments WHERE order_id = $1`, orderID)

	var (
		p        models.Payment
		amount   int64
		currency string
		status   string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.IdempotencyKey, &amount, &currency,
		&status, &p.GatewayReference, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	p.Amount = ordermodels.Money{Amount: amount, Currency: currency}
	p.Status = models.Status(status)
	return &p, nil
}
