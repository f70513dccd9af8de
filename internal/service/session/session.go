// Package session keeps one cart and one checkout per shopper device and
// maps opaque device tokens onto them.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/notify"
	"storefront-checkout/internal/service/cart"
	"storefront-checkout/internal/service/checkout"
)

type catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Session is everything held for one device.
type Session struct {
	DeviceID string
	Cart     *cart.Store
	Checkout *checkout.Orchestrator
	Notices  *notify.Inbox

	catalog catalog
	timeout time.Duration

	mu     sync.Mutex
	buyNow *domain.CartItem
}

// CheckoutRequest is the shopper's checkout form.
type CheckoutRequest struct {
	Shipping      domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod domain.PaymentMethod   `json:"paymentMethod"`
	Email         string                 `json:"email,omitempty"`
	CustomerID    string                 `json:"customerId,omitempty"`
}

// SignIn is the authentication edge for this device.
func (s *Session) SignIn(ctx context.Context, accessToken string) error {
	return s.Cart.SignIn(ctx, accessToken)
}

func (s *Session) SignOut(ctx context.Context) {
	s.Cart.SignOut(ctx)
	s.ClearBuyNow()
}

// StageBuyNow holds a single product for an immediate purchase outside the
// cart. It replaces any previously staged item.
func (s *Session) StageBuyNow(ctx context.Context, productID string, quantity int, size string) (domain.CartItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CartItem{}, &domain.ValidationError{Field: "productId", Message: "product is required"}
	}
	if quantity < 1 {
		return domain.CartItem{}, &domain.ValidationError{Field: "quantity", Message: "quantity must be at least 1"}
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("stage buy now: %w", err)
	}
	item := domain.CartItem{
		ID:        "buy-now-" + uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
		Size:      size,
		Price:     product.Price,
		Name:      product.Name,
		Image:     product.PrimaryImage(),
	}
	s.mu.Lock()
	s.buyNow = &item
	s.mu.Unlock()
	return item, nil
}

func (s *Session) BuyNow() *domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buyNow == nil {
		return nil
	}
	item := *s.buyNow
	return &item
}

func (s *Session) ClearBuyNow() {
	s.mu.Lock()
	s.buyNow = nil
	s.mu.Unlock()
}

// OrderConfirmed discards buy-now staging and returns the confirmation path.
func (s *Session) OrderConfirmed(_ context.Context, order domain.Order) string {
	s.ClearBuyNow()
	return "/orders/" + order.ID + "/confirmation"
}

// Begin starts a checkout and returns as soon as it finishes or a hosted
// payment page is waiting for the shopper. The attempt keeps running after
// ctx ends, bounded by the session's checkout timeout; observe it with
// Checkout.State.
func (s *Session) Begin(ctx context.Context, req CheckoutRequest) domain.CheckoutState {
	prompted := make(chan struct{})
	var once sync.Once
	in := checkout.Input{
		SessionID:     s.DeviceID,
		Items:         s.Cart.Items(),
		BuyNow:        s.BuyNow(),
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
		Email:         req.Email,
		CustomerID:    req.CustomerID,
		AccessToken:   s.Cart.Token(),
		OnPrompt: func(domain.PaymentPrompt) {
			once.Do(func() { close(prompted) })
		},
	}

	done := make(chan domain.CheckoutState, 1)
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	go func() {
		defer cancel()
		done <- s.Checkout.StartCheckout(runCtx, in)
	}()

	select {
	case state := <-done:
		return state
	case <-prompted:
		return s.Checkout.State()
	case <-ctx.Done():
		return s.Checkout.State()
	}
}
