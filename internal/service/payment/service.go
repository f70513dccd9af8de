// Package payment drives the hosted payment provider and confirms completed
// transactions with the payment service.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/money"
)

// Provider is the hosted payment takeover. Open blocks until the shopper
// finishes, cancels or the provider gives up.
type Provider interface {
	Open(ctx context.Context, req domain.ProviderRequest) domain.PaymentOutcome
}

type verifier interface {
	VerifyPayment(ctx context.Context, token, reference string) (*domain.PaymentVerification, error)
}

// ErrVerificationExhausted means every attempt ended in a transient error
// or a pending status.
var ErrVerificationExhausted = errors.New("payment verification exhausted")

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

type Service struct {
	provider    Provider
	verifier    verifier
	logger      *zap.Logger
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	isTransient func(error) bool
}

type Option func(*Service)

// WithRetry overrides the verification attempt budget and first delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			s.baseDelay = baseDelay
		}
	}
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

func New(provider Provider, verifier verifier, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		provider:    provider,
		verifier:    verifier,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		sleep:       sleepContext,
		isTransient: backend.IsTransient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate opens the hosted payment for req. The amount is converted to
// minor units here and nowhere else; the order id rides in the metadata so
// the webhook and verification resolve to the same order.
func (s *Service) Initiate(ctx context.Context, req domain.PaymentRequest) domain.PaymentOutcome {
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.PaymentFailed("", "order id is required")
	}
	minor := money.ToMinorUnits(req.Amount)
	if minor <= 0 {
		return domain.PaymentFailed("", "amount must be positive")
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["orderId"] = req.OrderID

	outcome := s.provider.Open(ctx, domain.ProviderRequest{
		AmountMinor: minor,
		Email:       req.Email,
		OrderID:     req.OrderID,
		CustomerID:  req.CustomerID,
		Metadata:    metadata,
		OnPrompt:    req.OnPrompt,
	})
	s.logger.Info("payment outcome",
		zap.String("order_id", req.OrderID),
		zap.String("reference", outcome.Reference),
		zap.Stringer("outcome", outcome.Kind),
	)
	return outcome
}

// InitializePayment is Initiate folded into (reference, error). Cancellation
// is ErrPaymentCancelled; anything else unsuccessful is a *PaymentError.
func (s *Service) InitializePayment(ctx context.Context, req domain.PaymentRequest) (string, error) {
	outcome := s.Initiate(ctx, req)
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		return outcome.Reference, nil
	case domain.OutcomeCancelled:
		return "", domain.ErrPaymentCancelled
	default:
		return "", &domain.PaymentError{Reason: outcome.Reason}
	}
}

// VerifyPayment asks the payment service for the state of reference.
func (s *Service) VerifyPayment(ctx context.Context, token, reference string) (domain.PaymentVerification, error) {
	if reference == "" {
		return domain.PaymentVerification{}, errors.New("payment reference is required")
	}
	v, err := s.verifier.VerifyPayment(ctx, token, reference)
	if err != nil {
		return domain.PaymentVerification{}, fmt.Errorf("verify payment %s: %w", reference, err)
	}
	return *v, nil
}

// RetryVerification verifies reference up to the attempt budget, waiting
// baseDelay·2^(n-1) after failed attempt n and not at all after the last.
// With the defaults that is three attempts separated by waits of 1s and 2s;
// there is no third wait. Only transient errors and a still-pending status
// are retried; a settled non-success status is ErrPaymentDeclined straight
// away.
func (s *Service) RetryVerification(ctx context.Context, token, reference string) (domain.PaymentVerification, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		v, err := s.VerifyPayment(ctx, token, reference)
		switch {
		case err == nil && v.Succeeded():
			return v, nil
		case err == nil && isPending(v.Status):
			lastErr = fmt.Errorf("payment %s still %s", reference, v.Status)
		case err == nil:
			return v, fmt.Errorf("%w: status %s", domain.ErrPaymentDeclined, v.Status)
		case !s.isTransient(err):
			return domain.PaymentVerification{}, err
		default:
			lastErr = err
		}

		if attempt == s.maxAttempts {
			break
		}
		delay := s.baseDelay << (attempt - 1)
		s.logger.Warn("payment verification retry",
			zap.String("reference", reference),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return domain.PaymentVerification{}, err
		}
	}
	return domain.PaymentVerification{}, fmt.Errorf("%w after %d attempts: %w", ErrVerificationExhausted, s.maxAttempts, lastErr)
}

func isPending(status string) bool {
	switch strings.ToLower(status) {
	case "pending", "processing", "ongoing":
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
