package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository is the Postgres ledger of verified gateway payments.
type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// RecordPayment inserts rec unless its payment id is already known. It
// reports whether the row was created and returns the stored row either way.
func (r *PaymentRepository) RecordPayment(ctx context.Context, rec *domain.PaymentRecord) (bool, *domain.PaymentRecord, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO payment_confirmations (payment_id, order_id, subscription_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (payment_id) DO NOTHING`,
		rec.PaymentID, rec.OrderID, rec.SubscriptionID, rec.Amount, rec.CreatedAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("failed to record payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, rec, nil
	}

	stored, err := r.FindPayment(ctx, rec.PaymentID)
	if err != nil {
		return false, nil, err
	}
	return false, stored, nil
}

func (r *PaymentRepository) FindPayment(ctx context.Context, paymentID string) (*domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	err := r.db.QueryRow(ctx, `
		SELECT payment_id, order_id, subscription_id, amount, processed_at, processing_error, created_at
		FROM payment_confirmations WHERE payment_id = $1`, paymentID,
	).Scan(&rec.PaymentID, &rec.OrderID, &rec.SubscriptionID, &rec.Amount, &rec.ProcessedAt, &rec.ProcessingError, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &rec, nil
}

// MarkPaymentProcessed records the outcome of applying a payment. A nil
// procErr marks it processed so replays are rejected; otherwise the error is
// kept and the payment may be retried.
func (r *PaymentRepository) MarkPaymentProcessed(ctx context.Context, paymentID string, subscriptionID *string, procErr error, at time.Time) error {
	var err error
	if procErr == nil {
		_, err = r.db.Exec(ctx, `
			UPDATE payment_confirmations SET processed_at = $1, processing_error = NULL, subscription_id = $2
			WHERE payment_id = $3`, at, subscriptionID, paymentID)
	} else {
		_, err = r.db.Exec(ctx, `
			UPDATE payment_confirmations SET processing_error = $1 WHERE payment_id = $2`,
			procErr.Error(), paymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark payment processed: %w", err)
	}
	return nil
}
