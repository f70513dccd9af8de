package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/money"
	"storefront-checkout/internal/repository/attempt"
	"storefront-checkout/internal/service/payment"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(name string) int {
	n := 0
	for _, c := range l.list() {
		if c == name {
			n++
		}
	}
	return n
}

type stubStock struct {
	log       *callLog
	result    domain.BulkStockResult
	err       error
	lastItems []domain.StockCheckItem
}

func (s *stubStock) BulkCheckStock(_ context.Context, items []domain.StockCheckItem) (domain.BulkStockResult, error) {
	s.log.add("stock")
	s.lastItems = items
	return s.result, s.err
}

type stubOrders struct {
	log       *callLog
	err       error
	lastInput domain.CreateOrderInput
	lastToken string
	created   map[string]domain.Order
	seq       int
}

func (s *stubOrders) CreateOrder(_ context.Context, token string, in domain.CreateOrderInput) (*domain.Order, error) {
	s.log.add("order")
	s.lastInput = in
	s.lastToken = token
	if s.err != nil {
		return nil, s.err
	}
	s.seq++
	order := domain.Order{
		ID:              "ord-" + string(rune('0'+s.seq)),
		Status:          in.Status,
		Total:           in.Total,
		ShippingAddress: in.ShippingAddress,
	}
	if s.created == nil {
		s.created = map[string]domain.Order{}
	}
	s.created[order.ID] = order
	return &order, nil
}

func (s *stubOrders) GetOrder(_ context.Context, _ string, id string) (*domain.Order, error) {
	s.log.add("get-order")
	order, ok := s.created[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &order, nil
}

type stubPayments struct {
	log       *callLog
	outcome   domain.PaymentOutcome
	verifyErr error
	verified  *domain.PaymentVerification
	block     chan struct{}
	lastReq   domain.PaymentRequest
	orderIDs  []string
}

func (s *stubPayments) Initiate(_ context.Context, req domain.PaymentRequest) domain.PaymentOutcome {
	s.log.add("pay")
	s.lastReq = req
	s.orderIDs = append(s.orderIDs, req.OrderID)
	if req.OnPrompt != nil {
		req.OnPrompt(domain.PaymentPrompt{Reference: "ref-1", URL: "https://pay.example/ref-1"})
	}
	if s.block != nil {
		<-s.block
	}
	return s.outcome
}

func (s *stubPayments) RetryVerification(_ context.Context, _ string, reference string) (domain.PaymentVerification, error) {
	s.log.add("verify")
	if s.verifyErr != nil {
		return domain.PaymentVerification{}, s.verifyErr
	}
	if s.verified != nil {
		return *s.verified, nil
	}
	return domain.PaymentVerification{Status: "success", Reference: reference, OrderID: s.lastReq.OrderID, Amount: s.lastReq.Amount}, nil
}

type stubCart struct {
	log     *callLog
	cleared int
}

func (s *stubCart) ClearCart(context.Context) {
	s.log.add("clear")
	s.cleared++
}

type stubNavigator struct {
	last *domain.Order
}

func (s *stubNavigator) OrderConfirmed(_ context.Context, order domain.Order) string {
	s.last = &order
	return "/orders/" + order.ID
}

type harness struct {
	orch     *Orchestrator
	log      *callLog
	stock    *stubStock
	orders   *stubOrders
	payments *stubPayments
	cart     *stubCart
	nav      *stubNavigator
	steps    []domain.CheckoutStep
	mu       sync.Mutex
}

func newHarness(attempts attempt.Repository) *harness {
	log := &callLog{}
	h := &harness{
		log:      log,
		stock:    &stubStock{log: log, result: domain.BulkStockResult{AllAvailable: true}},
		orders:   &stubOrders{log: log},
		payments: &stubPayments{log: log, outcome: domain.PaymentSucceeded("ref-1")},
		cart:     &stubCart{log: log},
		nav:      &stubNavigator{},
	}
	h.orch = New(Deps{
		Stock:     h.stock,
		Orders:    h.orders,
		Payments:  h.payments,
		Cart:      h.cart,
		Attempts:  attempts,
		Navigator: h.nav,
		Pricing: Pricing{
			TaxRate:     decimal.RequireFromString("0.1"),
			DeliveryFee: decimal.NewFromInt(20),
		},
		OnChange: func(s domain.CheckoutState) {
			h.mu.Lock()
			h.steps = append(h.steps, s.CurrentStep)
			h.mu.Unlock()
		},
	})
	return h
}

func (h *harness) sawStep(step domain.CheckoutStep) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.steps {
		if s == step {
			return true
		}
	}
	return false
}

func validInput(method domain.PaymentMethod) Input {
	return Input{
		SessionID: "sess-1",
		Items: []domain.CartItem{
			{ID: "l1", ProductID: "P1", Quantity: 2, Size: "9", Price: 50, Name: "Runner"},
		},
		Shipping: domain.ShippingAddress{
			FullName: "Ama Mensah",
			Email:    "ama@example.com",
			Phone:    "+233200000000",
			Address:  "1 Ring Road",
			City:     "Accra",
			Region:   "Greater Accra",
		},
		PaymentMethod: method,
		AccessToken:   "tok",
	}
}

func TestValidationFailsBeforeAnyCall(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*Input)
		field string
	}{
		{"missing city", func(in *Input) { in.Shipping.City = " " }, "city"},
		{"bad email", func(in *Input) { in.Shipping.Email = "nope" }, "email"},
		{"empty cart", func(in *Input) { in.Items = nil }, "items"},
		{"zero total", func(in *Input) { in.Items[0].Price = 0 }, "total"},
		{"no method", func(in *Input) { in.PaymentMethod = "" }, "paymentMethod"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(nil)
			in := validInput(domain.PaymentCard)
			tc.mut(&in)

			state := h.orch.StartCheckout(context.Background(), in)

			if state.CurrentStep != domain.StepValidating || state.Error == "" || state.Running {
				t.Fatalf("expected validation failure, got %+v", state)
			}
			if state.ErrorDetails == nil || state.ErrorDetails.Kind != domain.KindValidation || state.ErrorDetails.Field != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, state.ErrorDetails)
			}
			if calls := h.log.list(); len(calls) != 0 {
				t.Fatalf("expected no calls, got %v", calls)
			}
		})
	}
}

func TestStockRejectionBlocksOrder(t *testing.T) {
	h := newHarness(nil)
	h.stock.result = domain.BulkStockResult{
		Results:      []domain.StockCheckResult{{ProductID: "P2", RequestedQuantity: 5, IsAvailable: false, AvailableQuantity: 1}},
		AllAvailable: false,
	}
	in := validInput(domain.PaymentCard)
	in.Items = []domain.CartItem{{ProductID: "P2", Quantity: 5, Price: 30}}

	state := h.orch.StartCheckout(context.Background(), in)

	if !h.sawStep(domain.StepValidatingStock) {
		t.Fatalf("expected validating-stock step to be entered")
	}
	if h.log.count("order") != 0 {
		t.Fatalf("expected no order creation, got %v", h.log.list())
	}
	if !strings.Contains(state.Error, "P2") || !strings.Contains(state.Error, "only 1 available") {
		t.Fatalf("expected error naming P2, got %q", state.Error)
	}
	if state.ErrorDetails.Kind != domain.KindAvailability || len(state.ErrorDetails.Unavailable) != 1 {
		t.Fatalf("unexpected details %+v", state.ErrorDetails)
	}
}

func TestStockRejectionUsesCartName(t *testing.T) {
	h := newHarness(nil)
	h.stock.result = domain.BulkStockResult{
		Results: []domain.StockCheckResult{{ProductID: "P1", Size: "9", RequestedQuantity: 2}},
	}
	state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCash))
	if !strings.Contains(state.Error, "Runner (size 9): out of stock") {
		t.Fatalf("expected cart name in error, got %q", state.Error)
	}
}

func TestCashOnDeliverySkipsPayment(t *testing.T) {
	h := newHarness(nil)

	state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCash))

	if state.CurrentStep != domain.StepCompleted || state.Error != "" {
		t.Fatalf("expected completed, got %+v", state)
	}
	if h.sawStep(domain.StepProcessingPayment) {
		t.Fatalf("cash checkout entered processing-payment")
	}
	if h.orders.lastInput.Status != domain.OrderPending {
		t.Fatalf("expected pending order, got %s", h.orders.lastInput.Status)
	}
	if h.cart.cleared != 1 {
		t.Fatalf("expected cart cleared once, got %d", h.cart.cleared)
	}
	if h.log.count("pay") != 0 {
		t.Fatalf("expected no payment call")
	}
	if state.RedirectTo != "/orders/ord-1" || state.OrderID != "ord-1" {
		t.Fatalf("expected redirect to confirmation, got %+v", state)
	}
}

func TestCardSuccessOrdering(t *testing.T) {
	h := newHarness(nil)

	state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))

	if state.CurrentStep != domain.StepCompleted {
		t.Fatalf("expected completed, got %+v", state)
	}
	got := strings.Join(h.log.list(), ",")
	if got != "stock,order,pay,verify,clear" {
		t.Fatalf("unexpected call order %s", got)
	}
	if h.orders.lastInput.Status != domain.OrderProcessing {
		t.Fatalf("expected processing order, got %s", h.orders.lastInput.Status)
	}
	// 2 × 50 = 100, tax 10, delivery 20.
	if h.orders.lastInput.Total != 130 || h.orders.lastInput.Tax != 10 || h.orders.lastInput.DeliveryFee != 20 {
		t.Fatalf("unexpected totals %+v", h.orders.lastInput)
	}
	if h.payments.lastReq.Amount != 130 || h.payments.lastReq.OrderID != "ord-1" || h.payments.lastReq.Email != "ama@example.com" {
		t.Fatalf("unexpected payment request %+v", h.payments.lastReq)
	}
	if h.orders.lastToken != "tok" {
		t.Fatalf("expected bearer token passed to order service")
	}
	if h.nav.last == nil || h.nav.last.PaymentReference != "ref-1" {
		t.Fatalf("expected navigator to receive paid order, got %+v", h.nav.last)
	}
}

func TestCardCancellationResetsSoftly(t *testing.T) {
	h := newHarness(nil)
	h.payments.outcome = domain.PaymentCancelled("ref-1")

	state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))

	if h.orders.lastInput.Status != domain.OrderProcessing {
		t.Fatalf("expected processing order")
	}
	if state.CurrentStep != domain.StepValidating || state.Error != "" || state.Notice == "" {
		t.Fatalf("expected soft reset, got %+v", state)
	}
	if h.cart.cleared != 0 {
		t.Fatalf("expected cart kept")
	}
	if h.log.count("verify") != 0 {
		t.Fatalf("expected no verification after cancel")
	}
}

func TestCardHardFailure(t *testing.T) {
	h := newHarness(nil)
	h.payments.outcome = domain.PaymentFailed("ref-1", "deny")

	state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))

	if state.CurrentStep != domain.StepValidating || !strings.Contains(state.Error, "deny") {
		t.Fatalf("expected payment failure, got %+v", state)
	}
	if state.ErrorDetails.Kind != domain.KindPayment || h.cart.cleared != 0 {
		t.Fatalf("unexpected state %+v cleared=%d", state.ErrorDetails, h.cart.cleared)
	}
}

func TestVerificationOutcomes(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		h := newHarness(nil)
		h.payments.verifyErr = domain.ErrPaymentDeclined
		state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))
		if state.CurrentStep != domain.StepValidating || state.ErrorDetails.Kind != domain.KindPayment {
			t.Fatalf("expected declined failure, got %+v", state)
		}
		if h.cart.cleared != 0 {
			t.Fatalf("expected cart kept after decline")
		}
	})
	t.Run("exhausted", func(t *testing.T) {
		h := newHarness(nil)
		h.payments.verifyErr = payment.ErrVerificationExhausted
		state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))
		if state.CurrentStep != domain.StepCompleted || state.Notice == "" {
			t.Fatalf("expected completion with notice, got %+v", state)
		}
	})
}

func TestVerificationMustMatchOrder(t *testing.T) {
	cases := []struct {
		name     string
		verified domain.PaymentVerification
	}{
		{"other order", domain.PaymentVerification{Status: "success", Reference: "ref-1", OrderID: "ord-SOMEONE-ELSE", Amount: 130}},
		{"short amount", domain.PaymentVerification{Status: "success", Reference: "ref-1", OrderID: "ord-1", Amount: 0.01}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(nil)
			h.payments.verified = &tc.verified

			state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))

			if state.CurrentStep == domain.StepCompleted || state.Running {
				t.Fatalf("expected checkout to stop, got %+v", state)
			}
			if state.ErrorDetails == nil || state.ErrorDetails.Kind != domain.KindPayment || state.Error != msgPaymentMismatch {
				t.Fatalf("expected payment mismatch error, got %+v", state)
			}
			if h.cart.cleared != 0 || h.nav.last != nil {
				t.Fatalf("expected cart kept and no redirect, cleared=%d nav=%+v", h.cart.cleared, h.nav.last)
			}
		})
	}
}

func TestVerificationMatchingOrderCompletes(t *testing.T) {
	h := newHarness(nil)
	// 2 x 50 + 10% tax + 20 delivery.
	h.payments.verified = &domain.PaymentVerification{Status: "success", Reference: "ref-1", OrderID: "ord-1", Amount: 130}

	state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))

	if state.CurrentStep != domain.StepCompleted || h.cart.cleared != 1 {
		t.Fatalf("expected completion, got %+v cleared=%d", state, h.cart.cleared)
	}
	if got := money.ToMinorUnits(h.payments.lastReq.Amount); got != 13000 {
		t.Fatalf("expected 13000 minor units charged, got %d", got)
	}
}

func TestOrderErrorsAreClassified(t *testing.T) {
	h := newHarness(nil)
	h.orders.err = errors.New("backend returned 409: Insufficient stock for P1")

	state := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))

	if state.ErrorDetails == nil || state.ErrorDetails.Kind != domain.KindOrder || state.ErrorDetails.Hint == "" {
		t.Fatalf("expected order error with hint, got %+v", state.ErrorDetails)
	}
	if h.log.count("pay") != 0 {
		t.Fatalf("expected no payment after order failure")
	}

	other := classifyOrderError(errors.New("invalid product id"))
	if other.Reason != domain.OrderReasonInvalidProduct {
		t.Fatalf("expected invalid product, got %s", other.Reason)
	}
	if generic := classifyOrderError(errors.New("boom")); generic.Reason != domain.OrderReasonOther || generic.Hint != "" {
		t.Fatalf("expected generic error, got %+v", generic)
	}
}

func TestRetryReusesOpenOrder(t *testing.T) {
	h := newHarness(attempt.NewMemory())
	h.payments.outcome = domain.PaymentCancelled("ref-1")
	ctx := context.Background()

	h.orch.StartCheckout(ctx, validInput(domain.PaymentCard))
	h.payments.outcome = domain.PaymentSucceeded("ref-2")
	state := h.orch.StartCheckout(ctx, validInput(domain.PaymentCard))

	if state.CurrentStep != domain.StepCompleted {
		t.Fatalf("expected completed retry, got %+v", state)
	}
	if h.log.count("order") != 1 {
		t.Fatalf("expected a single order for both attempts, got %v", h.log.list())
	}
	if len(h.payments.orderIDs) != 2 || h.payments.orderIDs[0] != h.payments.orderIDs[1] {
		t.Fatalf("expected both payments against the same order, got %v", h.payments.orderIDs)
	}

	// A completed attempt is not reused.
	h.orch.StartCheckout(ctx, validInput(domain.PaymentCard))
	if h.log.count("order") != 2 {
		t.Fatalf("expected a new order after completion, got %v", h.log.list())
	}
}

func TestChangedCartCreatesNewOrder(t *testing.T) {
	h := newHarness(attempt.NewMemory())
	h.payments.outcome = domain.PaymentCancelled("ref-1")
	ctx := context.Background()

	h.orch.StartCheckout(ctx, validInput(domain.PaymentCard))
	in := validInput(domain.PaymentCard)
	in.Items[0].Quantity = 3
	h.orch.StartCheckout(ctx, in)

	if h.log.count("order") != 2 {
		t.Fatalf("expected a second order for a different cart, got %v", h.log.list())
	}
}

func TestBuyNowIsCheckedWithCart(t *testing.T) {
	h := newHarness(nil)
	in := validInput(domain.PaymentCash)
	in.BuyNow = &domain.CartItem{ProductID: "P9", Quantity: 1, Price: 10, Name: "Socks"}

	h.orch.StartCheckout(context.Background(), in)

	if len(h.stock.lastItems) != 2 || h.stock.lastItems[1].ProductID != "P9" {
		t.Fatalf("expected buy-now item in stock check, got %+v", h.stock.lastItems)
	}
	if len(h.orders.lastInput.Items) != 2 {
		t.Fatalf("expected buy-now item in order, got %+v", h.orders.lastInput.Items)
	}
}

func TestConcurrentStartIsRejected(t *testing.T) {
	h := newHarness(nil)
	h.payments.block = make(chan struct{})
	done := make(chan domain.CheckoutState, 1)

	go func() {
		done <- h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.orch.State().Payment == nil {
		if time.Now().After(deadline) {
			t.Fatalf("payment prompt never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
	before := len(h.log.list())

	rejected := h.orch.StartCheckout(context.Background(), validInput(domain.PaymentCard))
	if rejected.Error != msgAlreadyRunning {
		t.Fatalf("expected rejection, got %+v", rejected)
	}
	if len(h.log.list()) != before {
		t.Fatalf("rejected checkout made calls: %v", h.log.list())
	}
	if current := h.orch.State(); current.CurrentStep != domain.StepProcessingPayment || current.Error != "" {
		t.Fatalf("running state was disturbed: %+v", current)
	}

	close(h.payments.block)
	if final := <-done; final.CurrentStep != domain.StepCompleted {
		t.Fatalf("expected first checkout to complete, got %+v", final)
	}
}

func TestPricingQuote(t *testing.T) {
	p := Pricing{
		TaxRate:               decimal.RequireFromString("0.125"),
		DeliveryFee:           decimal.NewFromInt(15),
		FreeDeliveryThreshold: decimal.NewFromInt(200),
	}
	q := p.Quote([]domain.CartItem{{Price: 19.99, Quantity: 3}})
	if !q.Subtotal.Equal(decimal.RequireFromString("59.97")) || !q.Tax.Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("unexpected quote %+v", q)
	}
	if !q.Total.Equal(decimal.RequireFromString("82.47")) {
		t.Fatalf("expected total 82.47, got %s", q.Total)
	}
	free := p.Quote([]domain.CartItem{{Price: 200, Quantity: 1}})
	if !free.DeliveryFee.IsZero() {
		t.Fatalf("expected free delivery at threshold, got %s", free.DeliveryFee)
	}
}
