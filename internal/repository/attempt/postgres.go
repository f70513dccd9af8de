package attempt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

const attemptColumns = `id::text, session_id, order_id, fingerprint, payment_method, total::text, status, payment_reference, created_at, updated_at`

func (r *postgresRepo) Create(ctx context.Context, in CreateAttemptInput) (*domain.CheckoutAttempt, error) {
	const q = `
INSERT INTO checkout_attempts (id, session_id, order_id, fingerprint, payment_method, total, status)
VALUES ($1, $2, $3, $4, $5, $6::numeric, 'open')
RETURNING ` + attemptColumns
	row := r.pool.QueryRow(ctx, q, uuid.NewString(), in.SessionID, in.OrderID, in.Fingerprint, string(in.PaymentMethod), in.Total.StringFixed(2))
	return scanAttempt(row)
}

func (r *postgresRepo) FindOpen(ctx context.Context, sessionID, fingerprint string) (*domain.CheckoutAttempt, error) {
	const q = `
SELECT ` + attemptColumns + `
FROM checkout_attempts
WHERE session_id = $1 AND fingerprint = $2 AND status = 'open'
ORDER BY created_at DESC
LIMIT 1
`
	attempt, err := scanAttempt(r.pool.QueryRow(ctx, q, sessionID, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return attempt, err
}

func (r *postgresRepo) MarkCompleted(ctx context.Context, id, paymentReference string) error {
	const q = `
UPDATE checkout_attempts
SET status = 'completed', payment_reference = NULLIF($2, ''), updated_at = now()
WHERE id = $1
`
	return r.exec(ctx, q, id, paymentReference)
}

func (r *postgresRepo) MarkAbandoned(ctx context.Context, id string) error {
	const q = `
UPDATE checkout_attempts
SET status = 'abandoned', updated_at = now()
WHERE id = $1 AND status = 'open'
`
	return r.exec(ctx, q, id)
}

func (r *postgresRepo) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAttempt(row pgx.Row) (*domain.CheckoutAttempt, error) {
	var a domain.CheckoutAttempt
	var method, status, total string
	if err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.OrderID,
		&a.Fingerprint,
		&method,
		&total,
		&status,
		&a.PaymentReference,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse attempt total: %w", err)
	}
	a.Total = parsed
	a.PaymentMethod = domain.PaymentMethod(method)
	a.Status = domain.AttemptStatus(status)
	return &a, nil
}
