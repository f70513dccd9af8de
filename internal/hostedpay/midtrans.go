// Package hostedpay runs the hosted payment page on midtrans Snap and turns
// its asynchronous notifications into payment outcomes.
package hostedpay

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"

	"storefront-checkout/internal/domain"
)

// ErrInvalidSignature rejects a notification not signed with our server key.
var ErrInvalidSignature = errors.New("invalid signature")

type snapClient interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// NewSnapClient builds a Snap client for the sandbox or production.
func NewSnapClient(serverKey string, production bool) *snap.Client {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	var client snap.Client
	client.New(serverKey, env)
	return &client
}

// Provider opens Snap transactions and waits for their outcome.
type Provider struct {
	snap      snapClient
	serverKey string
	window    time.Duration
	logger    *zap.Logger
	newRef    func(orderID string) string

	mu      sync.Mutex
	waiters map[string]chan domain.PaymentOutcome
}

func New(client snapClient, serverKey string, window time.Duration, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Provider{
		snap:      client,
		serverKey: serverKey,
		window:    window,
		logger:    logger,
		newRef: func(orderID string) string {
			return fmt.Sprintf("ORDER-%s-%s", orderID, uuid.NewString())
		},
		waiters: make(map[string]chan domain.PaymentOutcome),
	}
}

// Open creates the transaction, hands the redirect URL to req.OnPrompt and
// blocks until a notification or Cancel settles it, the payment window
// elapses, or ctx ends. Only the last two are reported as failures without a
// provider decision.
func (p *Provider) Open(ctx context.Context, req domain.ProviderRequest) domain.PaymentOutcome {
	ref := p.newRef(req.OrderID)
	ch := p.register(ref)
	defer p.unregister(ref)

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  ref,
			GrossAmt: req.AmountMinor,
		},
		CustomField1: req.OrderID,
		CustomField2: req.CustomerID,
	}
	if req.Email != "" {
		snapReq.CustomerDetail = &midtrans.CustomerDetails{Email: req.Email}
	}

	resp, mErr := p.snap.CreateTransaction(snapReq)
	if mErr != nil {
		p.logger.Warn("snap transaction failed", zap.String("reference", ref), zap.String("error", mErr.Message))
		return domain.PaymentFailed(ref, mErr.Message)
	}
	if resp == nil || resp.RedirectURL == "" {
		return domain.PaymentFailed(ref, "payment page unavailable")
	}

	if req.OnPrompt != nil {
		req.OnPrompt(domain.PaymentPrompt{Reference: ref, URL: resp.RedirectURL})
	}

	timer := time.NewTimer(p.window)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out
	case <-timer.C:
		return domain.PaymentFailed(ref, "payment window expired")
	case <-ctx.Done():
		return domain.PaymentFailed(ref, ctx.Err().Error())
	}
}

// Cancel reports that the shopper closed the payment page. It returns false
// when no payment with that reference is waiting.
func (p *Provider) Cancel(reference string) bool {
	return p.deliver(reference, domain.PaymentCancelled(reference))
}

// Notification is the Snap HTTP notification body.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// HandleNotification verifies n and settles the matching waiting payment.
// It reports whether a waiting payment received an outcome.
func (p *Provider) HandleNotification(n Notification) (bool, error) {
	if !VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey, p.serverKey) {
		return false, ErrInvalidSignature
	}

	var out domain.PaymentOutcome
	switch n.TransactionStatus {
	case "settlement":
		out = domain.PaymentSucceeded(n.OrderID)
	case "capture":
		if n.FraudStatus != "accept" {
			return false, nil
		}
		out = domain.PaymentSucceeded(n.OrderID)
	case "cancel":
		out = domain.PaymentCancelled(n.OrderID)
	case "deny", "expire", "failure":
		out = domain.PaymentFailed(n.OrderID, n.TransactionStatus)
	default:
		return false, nil
	}

	delivered := p.deliver(n.OrderID, out)
	p.logger.Info("payment notification",
		zap.String("reference", n.OrderID),
		zap.String("status", n.TransactionStatus),
		zap.Bool("delivered", delivered),
	)
	return delivered, nil
}

func (p *Provider) register(ref string) chan domain.PaymentOutcome {
	ch := make(chan domain.PaymentOutcome, 1)
	p.mu.Lock()
	p.waiters[ref] = ch
	p.mu.Unlock()
	return ch
}

func (p *Provider) unregister(ref string) {
	p.mu.Lock()
	delete(p.waiters, ref)
	p.mu.Unlock()
}

func (p *Provider) deliver(ref string, out domain.PaymentOutcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.waiters[ref]
	if !ok {
		return false
	}
	select {
	case ch <- out:
	default:
		// first outcome wins
	}
	return true
}

// VerifySignature checks sha512(orderId + statusCode + grossAmount + serverKey).
func VerifySignature(orderID, statusCode, grossAmount, signature, serverKey string) bool {
	expected := Signature(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Signature computes the notification signature key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}
