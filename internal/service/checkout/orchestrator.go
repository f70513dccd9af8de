// Package checkout sequences a checkout attempt: field validation, stock
// validation, order creation, then payment for card orders. Each step only
// starts once the previous one has succeeded, so money is taken last.
package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/money"
	"storefront-checkout/internal/repository/attempt"
	"storefront-checkout/internal/service/payment"
)

type StockChecker interface {
	BulkCheckStock(ctx context.Context, items []domain.StockCheckItem) (domain.BulkStockResult, error)
}

type OrderService interface {
	CreateOrder(ctx context.Context, token string, in domain.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, token, id string) (*domain.Order, error)
}

type PaymentGateway interface {
	Initiate(ctx context.Context, req domain.PaymentRequest) domain.PaymentOutcome
	RetryVerification(ctx context.Context, token, reference string) (domain.PaymentVerification, error)
}

type cartClearer interface {
	ClearCart(ctx context.Context)
}

// Navigator receives a confirmed order and returns where to send the shopper.
type Navigator interface {
	OrderConfirmed(ctx context.Context, order domain.Order) string
}

type Deps struct {
	Stock    StockChecker
	Orders   OrderService
	Payments PaymentGateway
	Cart     cartClearer
	// Attempts is optional. Without it every attempt creates a new order.
	Attempts  attempt.Repository
	Navigator Navigator
	Pricing   Pricing
	Logger    *zap.Logger
	// OnChange observes every state transition.
	OnChange func(domain.CheckoutState)
}

// Input is everything one checkout attempt needs. BuyNow is the staged
// one-off item, if any; it is checked and ordered together with Items.
type Input struct {
	SessionID     string
	Items         []domain.CartItem
	BuyNow        *domain.CartItem
	Shipping      domain.ShippingAddress
	PaymentMethod domain.PaymentMethod
	Email         string
	CustomerID    string
	AccessToken   string
	// OnPrompt, if set, is called once this attempt's hosted payment page
	// is ready. A rejected attempt never calls it.
	OnPrompt func(domain.PaymentPrompt)
}

type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	state domain.CheckoutState
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{deps: deps, logger: logger, now: time.Now}
	o.state = domain.CheckoutState{CurrentStep: domain.StepValidating, UpdatedAt: o.now().UTC()}
	return o
}

// State returns a copy of the current checkout state.
func (o *Orchestrator) State() domain.CheckoutState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// StartCheckout runs one attempt to completion and returns the final state.
// A call made while another attempt is running is rejected without any
// side effect.
func (o *Orchestrator) StartCheckout(ctx context.Context, in Input) (final domain.CheckoutState) {
	o.mu.Lock()
	if o.state.Running {
		rejected := o.state
		o.mu.Unlock()
		rejected.Error = msgAlreadyRunning
		return rejected
	}
	o.state = domain.CheckoutState{CurrentStep: domain.StepValidating, Running: true, UpdatedAt: o.now().UTC()}
	o.mu.Unlock()
	o.emit()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("checkout panicked", zap.Any("panic", r), zap.String("session_id", in.SessionID))
			final = o.fail(domain.KindNetwork, "Something went wrong. Please try again.", nil)
		}
	}()

	run := attemptRun{o: o, in: in, log: o.logger.With(zap.String("session_id", in.SessionID))}
	return run.execute(ctx)
}

type attemptRun struct {
	o   *Orchestrator
	in  Input
	log *zap.Logger

	lines   []domain.CartItem
	quote   Breakdown
	token   string
	attempt *domain.CheckoutAttempt
}

func (r *attemptRun) execute(ctx context.Context) domain.CheckoutState {
	o := r.o
	r.token = r.in.AccessToken
	r.lines = combine(r.in.Items, r.in.BuyNow)
	r.quote = o.deps.Pricing.Quote(r.lines)

	if err := r.validate(); err != nil {
		var verr *domain.ValidationError
		field := ""
		if errors.As(err, &verr) {
			field = verr.Field
		}
		return o.fail(domain.KindValidation, err.Error(), &domain.ErrorDetails{Field: field})
	}

	o.step(domain.StepValidatingStock, r.log)
	if state, ok := r.checkStock(ctx); !ok {
		return state
	}

	o.step(domain.StepCreatingOrder, r.log)
	order, state, ok := r.placeOrder(ctx)
	if !ok {
		return state
	}
	o.update(func(s *domain.CheckoutState) { s.OrderID = order.ID })

	if r.in.PaymentMethod == domain.PaymentCash {
		return r.complete(ctx, *order, "", "")
	}

	o.step(domain.StepProcessingPayment, r.log)
	return r.pay(ctx, *order)
}

func (r *attemptRun) validate() error {
	in := r.in
	if !in.PaymentMethod.Valid() {
		return &domain.ValidationError{Field: "paymentMethod", Message: "Choose a payment method."}
	}
	required := []struct {
		field, value, label string
	}{
		{"fullName", in.Shipping.FullName, "Full name"},
		{"email", in.Shipping.Email, "Email"},
		{"phone", in.Shipping.Phone, "Phone number"},
		{"address", in.Shipping.Address, "Address"},
		{"city", in.Shipping.City, "City"},
		{"region", in.Shipping.Region, "Region"},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &domain.ValidationError{Field: f.field, Message: f.label + " is required."}
		}
	}
	if _, err := mail.ParseAddress(in.Shipping.Email); err != nil {
		return &domain.ValidationError{Field: "email", Message: "Enter a valid email address."}
	}
	if len(r.lines) == 0 {
		return &domain.ValidationError{Field: "items", Message: "Your cart is empty."}
	}
	for _, line := range r.lines {
		if line.Quantity < 1 {
			return &domain.ValidationError{Field: "items", Message: "Every item needs a quantity of at least 1."}
		}
	}
	if !r.quote.Subtotal.IsPositive() {
		return &domain.ValidationError{Field: "total", Message: "Your order total must be greater than zero."}
	}
	return nil
}

func (r *attemptRun) checkStock(ctx context.Context) (domain.CheckoutState, bool) {
	o := r.o
	items := make([]domain.StockCheckItem, 0, len(r.lines))
	for _, line := range r.lines {
		items = append(items, domain.StockCheckItem{ProductID: line.ProductID, Size: line.Size, Quantity: line.Quantity})
	}

	res, err := o.deps.Stock.BulkCheckStock(ctx, items)
	if err != nil {
		r.log.Warn("stock check failed", zap.Error(err))
		return o.fail(domain.KindNetwork, "We could not check stock right now. Please try again.", nil), false
	}
	if res.AllAvailable {
		return domain.CheckoutState{}, true
	}

	names := make(map[domain.LineKey]string, len(r.lines))
	for _, line := range r.lines {
		names[line.Key()] = line.Name
	}
	var unavailable []domain.UnavailableLine
	for _, bad := range res.Unavailable() {
		unavailable = append(unavailable, domain.UnavailableLine{
			ProductID: bad.ProductID,
			Size:      bad.Size,
			Name:      names[domain.LineKey{ProductID: bad.ProductID, Size: bad.Size}],
			Requested: bad.RequestedQuantity,
			Available: bad.AvailableQuantity,
		})
	}
	if len(unavailable) == 0 {
		// allAvailable=false without a failing line still blocks the order.
		return o.fail(domain.KindAvailability, "Some items are no longer available.", &domain.ErrorDetails{Results: res.Results}), false
	}
	uerr := &domain.UnavailableError{Lines: unavailable}
	return o.fail(domain.KindAvailability, uerr.Error(), &domain.ErrorDetails{Unavailable: unavailable, Results: res.Results}), false
}

// placeOrder creates the order, or reuses the open one from an earlier
// attempt with the same cart, address, method and total.
func (r *attemptRun) placeOrder(ctx context.Context) (*domain.Order, domain.CheckoutState, bool) {
	o := r.o
	fingerprint := r.fingerprint()

	if order := r.reusableOrder(ctx, fingerprint); order != nil {
		r.log.Info("reusing order from earlier attempt", zap.String("order_id", order.ID))
		return order, domain.CheckoutState{}, true
	}

	status := domain.OrderProcessing
	if r.in.PaymentMethod == domain.PaymentCash {
		status = domain.OrderPending
	}
	order, err := o.deps.Orders.CreateOrder(ctx, r.token, domain.CreateOrderInput{
		Items:           domain.OrderItemsFrom(r.lines),
		ShippingAddress: r.in.Shipping,
		Total:           r.quote.Total.InexactFloat64(),
		Tax:             r.quote.Tax.InexactFloat64(),
		DeliveryFee:     r.quote.DeliveryFee.InexactFloat64(),
		Status:          status,
		PaymentMethod:   r.in.PaymentMethod,
	})
	if err != nil {
		r.log.Warn("order creation failed", zap.Error(err))
		oerr := classifyOrderError(err)
		return nil, o.fail(domain.KindOrder, oerr.Error(), &domain.ErrorDetails{Hint: oerr.Hint}), false
	}
	r.log.Info("order created", zap.String("order_id", order.ID), zap.String("status", string(status)))

	if o.deps.Attempts != nil {
		a, err := o.deps.Attempts.Create(ctx, attempt.CreateAttemptInput{
			SessionID:     r.in.SessionID,
			OrderID:       order.ID,
			Fingerprint:   fingerprint,
			PaymentMethod: r.in.PaymentMethod,
			Total:         r.quote.Total,
		})
		if err != nil {
			r.log.Warn("record checkout attempt failed", zap.String("order_id", order.ID), zap.Error(err))
		} else {
			r.attempt = a
		}
	}
	return order, domain.CheckoutState{}, true
}

func (r *attemptRun) reusableOrder(ctx context.Context, fingerprint string) *domain.Order {
	o := r.o
	if o.deps.Attempts == nil || r.in.PaymentMethod != domain.PaymentCard {
		return nil
	}
	open, err := o.deps.Attempts.FindOpen(ctx, r.in.SessionID, fingerprint)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.log.Warn("look up open attempt failed", zap.Error(err))
		}
		return nil
	}
	order, err := o.deps.Orders.GetOrder(ctx, r.token, open.OrderID)
	if err == nil && order.Status == domain.OrderProcessing {
		r.attempt = open
		return order
	}
	if err := o.deps.Attempts.MarkAbandoned(ctx, open.ID); err != nil {
		r.log.Warn("abandon stale attempt failed", zap.String("attempt_id", open.ID), zap.Error(err))
	}
	return nil
}

func (r *attemptRun) pay(ctx context.Context, order domain.Order) domain.CheckoutState {
	o := r.o
	email := r.in.Email
	if email == "" {
		email = r.in.Shipping.Email
	}
	outcome := o.deps.Payments.Initiate(ctx, domain.PaymentRequest{
		Amount:     r.quote.Total.InexactFloat64(),
		Email:      email,
		OrderID:    order.ID,
		CustomerID: r.in.CustomerID,
		Metadata:   map[string]string{"sessionId": r.in.SessionID},
		OnPrompt: func(p domain.PaymentPrompt) {
			o.update(func(s *domain.CheckoutState) { s.Payment = &p })
			if r.in.OnPrompt != nil {
				r.in.OnPrompt(p)
			}
		},
	})

	switch outcome.Kind {
	case domain.OutcomeCancelled:
		r.log.Info("payment cancelled by shopper", zap.String("order_id", order.ID))
		return o.rollback("Payment cancelled. Your cart is still here when you are ready.")
	case domain.OutcomeFailed:
		return o.fail(domain.KindPayment, (&domain.PaymentError{Reason: outcome.Reason}).Error(), nil)
	}

	v, err := o.deps.Payments.RetryVerification(ctx, r.token, outcome.Reference)
	switch {
	case err == nil:
		if !r.matches(v, order) {
			r.log.Warn("verified payment does not match order",
				zap.String("order_id", order.ID),
				zap.String("verified_order_id", v.OrderID),
				zap.Float64("verified_amount", v.Amount),
				zap.String("reference", outcome.Reference),
			)
			return o.fail(domain.KindPayment, msgPaymentMismatch, nil)
		}
		return r.complete(ctx, order, outcome.Reference, "")
	case errors.Is(err, domain.ErrPaymentDeclined):
		r.log.Warn("payment declined on verification", zap.String("reference", outcome.Reference), zap.Error(err))
		return o.fail(domain.KindPayment, "Your payment was declined. Please try another card.", nil)
	default:
		if !errors.Is(err, payment.ErrVerificationExhausted) {
			r.log.Warn("payment verification error", zap.String("reference", outcome.Reference), zap.Error(err))
		}
		return r.complete(ctx, order, outcome.Reference, "Payment received. Confirmation is still pending and will follow by email.")
	}
}

// matches reports whether a verification belongs to order and settled the
// quoted total. Fields the provider left empty are not compared.
func (r *attemptRun) matches(v domain.PaymentVerification, order domain.Order) bool {
	if v.OrderID != "" && v.OrderID != order.ID {
		return false
	}
	if v.Amount != 0 && money.ToMinorUnits(v.Amount) != money.ToMinorUnits(r.quote.Total.InexactFloat64()) {
		return false
	}
	return true
}

func (r *attemptRun) complete(ctx context.Context, order domain.Order, reference, notice string) domain.CheckoutState {
	o := r.o
	o.deps.Cart.ClearCart(ctx)
	if r.attempt != nil && o.deps.Attempts != nil {
		if err := o.deps.Attempts.MarkCompleted(ctx, r.attempt.ID, reference); err != nil {
			r.log.Warn("complete checkout attempt failed", zap.String("attempt_id", r.attempt.ID), zap.Error(err))
		}
	}
	order.PaymentReference = reference

	redirect := ""
	if o.deps.Navigator != nil {
		redirect = o.deps.Navigator.OrderConfirmed(ctx, order)
	}
	r.log.Info("checkout completed", zap.String("order_id", order.ID), zap.String("reference", reference))
	return o.update(func(s *domain.CheckoutState) {
		s.CurrentStep = domain.StepCompleted
		s.Running = false
		s.Notice = notice
		s.RedirectTo = redirect
		s.Payment = nil
	})
}

// fingerprint identifies "the same checkout" across attempts.
func (r *attemptRun) fingerprint() string {
	payload := struct {
		Lines    []domain.OrderItem     `json:"lines"`
		Shipping domain.ShippingAddress `json:"shipping"`
		Method   domain.PaymentMethod   `json:"method"`
		Total    string                 `json:"total"`
	}{
		Lines:    domain.OrderItemsFrom(r.lines),
		Shipping: r.in.Shipping,
		Method:   r.in.PaymentMethod,
		Total:    r.quote.Total.StringFixed(2),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// combine folds the buy-now item into the cart lines.
func combine(items []domain.CartItem, buyNow *domain.CartItem) []domain.CartItem {
	lines := domain.CloneItems(items)
	if buyNow == nil {
		return lines
	}
	if i := domain.IndexOf(lines, buyNow.Key()); i >= 0 {
		lines[i].Quantity += buyNow.Quantity
		return lines
	}
	return append(lines, *buyNow)
}

func (o *Orchestrator) step(step domain.CheckoutStep, log *zap.Logger) {
	log.Info("checkout step", zap.String("step", string(step)))
	o.update(func(s *domain.CheckoutState) { s.CurrentStep = step })
}

// fail rolls back to validating with message as the banner.
func (o *Orchestrator) fail(kind domain.ErrorKind, message string, details *domain.ErrorDetails) domain.CheckoutState {
	if details == nil {
		details = &domain.ErrorDetails{}
	}
	details.Kind = kind
	return o.update(func(s *domain.CheckoutState) {
		s.CurrentStep = domain.StepValidating
		s.Running = false
		s.Error = message
		s.ErrorDetails = details
		s.Payment = nil
	})
}

// rollback returns to validating with a neutral notice and no error.
func (o *Orchestrator) rollback(notice string) domain.CheckoutState {
	return o.update(func(s *domain.CheckoutState) {
		s.CurrentStep = domain.StepValidating
		s.Running = false
		s.Error = ""
		s.ErrorDetails = nil
		s.Notice = notice
		s.Payment = nil
	})
}

func (o *Orchestrator) update(fn func(*domain.CheckoutState)) domain.CheckoutState {
	o.mu.Lock()
	fn(&o.state)
	o.state.UpdatedAt = o.now().UTC()
	snapshot := o.state
	o.mu.Unlock()
	if o.deps.OnChange != nil {
		o.deps.OnChange(snapshot)
	}
	return snapshot
}

func (o *Orchestrator) emit() {
	if o.deps.OnChange != nil {
		o.deps.OnChange(o.State())
	}
}
