package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
)

type memoryRepo struct {
	mu       sync.Mutex
	attempts []domain.CheckoutAttempt
}

// NewMemory keeps attempts in process. Used when no database is configured.
func NewMemory() Repository {
	return &memoryRepo{}
}

func (r *memoryRepo) Create(_ context.Context, in CreateAttemptInput) (*domain.CheckoutAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	a := domain.CheckoutAttempt{
		ID:            uuid.NewString(),
		SessionID:     in.SessionID,
		OrderID:       in.OrderID,
		Fingerprint:   in.Fingerprint,
		PaymentMethod: in.PaymentMethod,
		Total:         in.Total.Round(2),
		Status:        domain.AttemptOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.attempts = append(r.attempts, a)
	return &a, nil
}

func (r *memoryRepo) FindOpen(_ context.Context, sessionID, fingerprint string) (*domain.CheckoutAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.attempts) - 1; i >= 0; i-- {
		a := r.attempts[i]
		if a.SessionID == sessionID && a.Fingerprint == fingerprint && a.Status == domain.AttemptOpen {
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRepo) MarkCompleted(_ context.Context, id, paymentReference string) error {
	return r.update(id, func(a *domain.CheckoutAttempt) bool {
		a.Status = domain.AttemptCompleted
		if paymentReference != "" {
			ref := paymentReference
			a.PaymentReference = &ref
		}
		return true
	})
}

func (r *memoryRepo) MarkAbandoned(_ context.Context, id string) error {
	return r.update(id, func(a *domain.CheckoutAttempt) bool {
		if a.Status != domain.AttemptOpen {
			return false
		}
		a.Status = domain.AttemptAbandoned
		return true
	})
}

func (r *memoryRepo) update(id string, fn func(*domain.CheckoutAttempt) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.attempts {
		if r.attempts[i].ID != id {
			continue
		}
		if !fn(&r.attempts[i]) {
			return domain.ErrNotFound
		}
		r.attempts[i].UpdatedAt = time.Now().UTC()
		return nil
	}
	return domain.ErrNotFound
}
