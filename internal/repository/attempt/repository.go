package attempt

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

type CreateAttemptInput struct {
	SessionID     string
	OrderID       string
	Fingerprint   string
	PaymentMethod domain.PaymentMethod
	Total         decimal.Decimal
}

type Repository interface {
	Create(ctx context.Context, in CreateAttemptInput) (*domain.CheckoutAttempt, error)
	// FindOpen returns the newest open attempt for the session and fingerprint.
	FindOpen(ctx context.Context, sessionID, fingerprint string) (*domain.CheckoutAttempt, error)
	MarkCompleted(ctx context.Context, id, paymentReference string) error
	MarkAbandoned(ctx context.Context, id string) error
}
