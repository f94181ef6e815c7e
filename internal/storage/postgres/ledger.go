package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/checkout"
)

const (
	confirmedOrderSQL = `SELECT order_id FROM checkout_attempts
	WHERE idempotency_key = $1 AND status = 'confirmed'
	ORDER BY created_at DESC
	LIMIT 1`

	recordAttemptSQL = `INSERT INTO checkout_attempts
	(idempotency_key, status, order_id, subtotal, total, payment_amount, payment_method, payment_option, error, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

var _ checkout.Ledger = (*Ledger)(nil)

// Ledger implements checkout.Ledger over the checkout_attempts table.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger returns a Ledger that uses the given pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// ConfirmedOrder returns the order id of the latest confirmed attempt for
// idempotencyKey.
func (l *Ledger) ConfirmedOrder(ctx context.Context, idempotencyKey string) (string, bool, error) {
	var orderID string
	err := l.pool.QueryRow(ctx, confirmedOrderSQL, idempotencyKey).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "find confirmed order for %q", idempotencyKey)
	}
	return orderID, true, nil
}

// Record appends a submission attempt.
func (l *Ledger) Record(ctx context.Context, a checkout.Attempt) error {
	_, err := l.pool.Exec(ctx, recordAttemptSQL,
		a.IdempotencyKey,
		string(a.Status),
		a.OrderID,
		a.Subtotal,
		a.Total,
		a.PaymentAmount,
		string(a.PaymentMethod),
		string(a.PaymentOption),
		a.Error,
		a.At,
	)
	if err != nil {
		return errors.Wrapf(err, "record attempt for %q", a.IdempotencyKey)
	}
	return nil
}
