package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-checkout/internal/notify"
	"storefront-checkout/internal/repository/attempt"
	"storefront-checkout/internal/repository/snapshot"
	"storefront-checkout/internal/service/cart"
	"storefront-checkout/internal/service/checkout"
)

var ErrInvalidToken = errors.New("invalid token")

// Builder holds the collaborators shared by every session.
type Builder struct {
	CartAPI   cart.API
	Catalog   catalog
	Snapshots snapshot.Repository
	Stock     checkout.StockChecker
	Orders    checkout.OrderService
	Payments  checkout.PaymentGateway
	Attempts  attempt.Repository
	Pricing   checkout.Pricing
	// CheckoutTimeout bounds one checkout attempt, payment included.
	CheckoutTimeout time.Duration
	Logger          *zap.Logger
}

// Build wires a fresh session for deviceID and restores its Local Snapshot.
func (b Builder) Build(ctx context.Context, deviceID string) (*Session, error) {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := b.CheckoutTimeout
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	inbox := notify.NewInbox(0)
	s := &Session{
		DeviceID: deviceID,
		Notices:  inbox,
		catalog:  b.Catalog,
		timeout:  timeout,
	}
	s.Cart = cart.New(cart.Deps{
		DeviceID:  deviceID,
		API:       b.CartAPI,
		Catalog:   b.Catalog,
		Snapshots: b.Snapshots,
		Notifier:  inbox,
		Logger:    logger,
	})
	s.Checkout = checkout.New(checkout.Deps{
		Stock:     b.Stock,
		Orders:    b.Orders,
		Payments:  b.Payments,
		Cart:      s.Cart,
		Attempts:  b.Attempts,
		Navigator: s,
		Pricing:   b.Pricing,
		Logger:    logger,
	})
	if err := s.Cart.Restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type Factory func(ctx context.Context, deviceID string) (*Session, error)

// Issued is a freshly issued device token.
type Issued struct {
	Token     string `json:"token"`
	DeviceID  string `json:"deviceId"`
	ExpiresIn int    `json:"expiresIn"`
}

// Registry maps device tokens to sessions.
type Registry struct {
	tokens  *tokenManager
	factory Factory
	ttl     time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(factory Factory, ttl time.Duration, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tokens:   newTokenManager(),
		factory:  factory,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Issue creates a device and its guest session.
func (r *Registry) Issue(ctx context.Context) (Issued, error) {
	deviceID := uuid.NewString()
	s, err := r.factory(ctx, deviceID)
	if err != nil {
		return Issued{}, fmt.Errorf("build session: %w", err)
	}
	token, err := r.tokens.Issue(deviceID, r.ttl)
	if err != nil {
		return Issued{}, err
	}
	r.mu.Lock()
	r.sessions[deviceID] = s
	r.mu.Unlock()
	r.logger.Info("session issued", zap.String("device_id", deviceID))
	return Issued{Token: token, DeviceID: deviceID, ExpiresIn: int(r.ttl.Seconds())}, nil
}

// Resolve returns the session behind token. A valid token whose session was
// swept is given a new session restored from its snapshot.
func (r *Registry) Resolve(ctx context.Context, token string) (*Session, error) {
	meta, ok := r.tokens.Validate(token)
	if !ok {
		return nil, ErrInvalidToken
	}
	r.mu.Lock()
	s, ok := r.sessions[meta.DeviceID]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	s, err := r.factory(ctx, meta.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("build session: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[meta.DeviceID]; ok {
		return existing, nil
	}
	r.sessions[meta.DeviceID] = s
	return s, nil
}

// Sweep drops sessions whose tokens have all expired.
func (r *Registry) Sweep() int {
	dead := r.tokens.Expire()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dead {
		delete(r.sessions, id)
	}
	return len(dead)
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
