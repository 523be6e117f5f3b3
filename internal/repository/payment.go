package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devlink-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository handles database operations for payments and entitlements
type PaymentRepository struct {
	db *pgxpool.Pool
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// TransitionResult describes what a webhook delivery did to its payment
type TransitionResult struct {
	Payment *models.Payment
	// Applied is true only for the delivery that moved the payment out of created.
	Applied bool
}

const paymentColumns = `id, user_id, order_id, tier, amount, currency, status, receipt, notes, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var tier, status string
	var notes []byte
	err := row.Scan(
		&p.ID, &p.UserID, &p.OrderID, &tier, &p.Amount, &p.Currency,
		&status, &p.Receipt, &notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Tier = models.Tier(tier)
	p.Status = models.PaymentStatus(status)
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &p.Notes); err != nil {
			return nil, fmt.Errorf("failed to decode payment notes: %w", err)
		}
	}
	return &p, nil
}

// Create stores a new payment record
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	notes, err := json.Marshal(p.Notes)
	if err != nil {
		return fmt.Errorf("failed to encode payment notes: %w", err)
	}

	query := `
		INSERT INTO payments (id, user_id, order_id, tier, amount, currency, status, receipt, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.Exec(ctx, query,
		p.ID, p.UserID, p.OrderID, string(p.Tier), p.Amount, p.Currency,
		string(p.Status), p.Receipt, notes, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByOrderID retrieves a payment by provider order ID
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ApplyDelivery reconciles one verified webhook delivery inside a transaction.
// The payment row is locked, moved out of created only if the delivery carries
// a terminal status, and the owner's entitlement is granted only by the
// delivery that performs the move to captured. The delivery itself is
// recorded once per event ID. Returns ErrNotFound for an unknown order.
func (r *PaymentRepository) ApplyDelivery(ctx context.Context, d *models.WebhookDelivery, now time.Time) (*TransitionResult, error) {
	var result TransitionResult
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		lock := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 FOR UPDATE`
		p, err := scanPayment(tx.QueryRow(ctx, lock, d.OrderID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		result.Payment = p

		if d.Status.IsTerminal() && p.Status == models.PaymentCreated {
			update := `
				UPDATE payments SET status = $2, updated_at = $3
				WHERE order_id = $1 AND status = $4
			`
			tag, err := tx.Exec(ctx, update, d.OrderID, string(d.Status), now, string(models.PaymentCreated))
			if err != nil {
				return fmt.Errorf("failed to update payment status: %w", err)
			}
			if tag.RowsAffected() == 1 {
				result.Applied = true
				p.Status = d.Status
				p.UpdatedAt = now
			}
		}

		if result.Applied && p.Status == models.PaymentCaptured {
			grant := `UPDATE users SET is_premium = TRUE, membership_tier = $2 WHERE id = $1`
			if _, err := tx.Exec(ctx, grant, p.UserID, string(p.Tier)); err != nil {
				return fmt.Errorf("failed to grant entitlement: %w", err)
			}
		}

		audit := `
			INSERT INTO payment_webhook_events (event_id, order_id, event, status, payload, applied, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id) DO NOTHING
		`
		_, err = tx.Exec(ctx, audit,
			d.EventID, d.OrderID, d.Event, string(d.Status), d.Payload, result.Applied, d.ReceivedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to record webhook delivery: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}
