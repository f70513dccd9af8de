package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	AttemptOpen      AttemptStatus = "open"
	AttemptCompleted AttemptStatus = "completed"
	AttemptAbandoned AttemptStatus = "abandoned"
)

// CheckoutAttempt records an order created for a session so that a retried
// payment for the same cart reuses the order instead of creating another.
type CheckoutAttempt struct {
	ID               string
	SessionID        string
	OrderID          string
	Fingerprint      string
	PaymentMethod    PaymentMethod
	Total            decimal.Decimal
	Status           AttemptStatus
	PaymentReference *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
