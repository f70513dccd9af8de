package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/domain"
)

type stubProvider struct {
	outcome domain.PaymentOutcome
	lastReq domain.ProviderRequest
	calls   int
}

func (s *stubProvider) Open(_ context.Context, req domain.ProviderRequest) domain.PaymentOutcome {
	s.calls++
	s.lastReq = req
	return s.outcome
}

type verifyStep struct {
	v   *domain.PaymentVerification
	err error
}

type stubVerifier struct {
	steps     []verifyStep
	calls     int
	lastToken string
}

func (s *stubVerifier) VerifyPayment(_ context.Context, token, reference string) (*domain.PaymentVerification, error) {
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	step := s.steps[i]
	s.calls++
	s.lastToken = token
	return step.v, step.err
}

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestInitiateConvertsToMinorUnits(t *testing.T) {
	provider := &stubProvider{outcome: domain.PaymentSucceeded("ref-1")}
	svc := New(provider, &stubVerifier{}, nil)

	var prompted bool
	out := svc.Initiate(context.Background(), domain.PaymentRequest{
		Amount:   129.99,
		Email:    "a@b.c",
		OrderID:  "ord-1",
		Metadata: map[string]string{"source": "web"},
		OnPrompt: func(domain.PaymentPrompt) { prompted = true },
	})

	require.Equal(t, domain.OutcomeSuccess, out.Kind)
	assert.Equal(t, int64(12999), provider.lastReq.AmountMinor)
	assert.Equal(t, "ord-1", provider.lastReq.Metadata["orderId"])
	assert.Equal(t, "web", provider.lastReq.Metadata["source"])
	require.NotNil(t, provider.lastReq.OnPrompt)
	provider.lastReq.OnPrompt(domain.PaymentPrompt{})
	assert.True(t, prompted)
}

func TestInitiateRejectsBadRequests(t *testing.T) {
	provider := &stubProvider{}
	svc := New(provider, &stubVerifier{}, nil)

	assert.Equal(t, domain.OutcomeFailed, svc.Initiate(context.Background(), domain.PaymentRequest{Amount: 10}).Kind)
	assert.Equal(t, domain.OutcomeFailed, svc.Initiate(context.Background(), domain.PaymentRequest{Amount: 0, OrderID: "o"}).Kind)
	assert.Zero(t, provider.calls)
}

func TestInitializePaymentOutcomes(t *testing.T) {
	provider := &stubProvider{outcome: domain.PaymentCancelled("ref")}
	svc := New(provider, &stubVerifier{}, nil)
	req := domain.PaymentRequest{Amount: 5, OrderID: "o"}

	_, err := svc.InitializePayment(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrPaymentCancelled)

	provider.outcome = domain.PaymentFailed("ref", "card declined")
	_, err = svc.InitializePayment(context.Background(), req)
	var perr *domain.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "card declined", perr.Reason)

	provider.outcome = domain.PaymentSucceeded("ref-ok")
	ref, err := svc.InitializePayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ref-ok", ref)
}

func TestRetryVerificationBacksOffOnTransient(t *testing.T) {
	verifier := &stubVerifier{steps: []verifyStep{
		{err: &backend.StatusError{StatusCode: 503}},
		{err: &backend.StatusError{StatusCode: 502}},
		{v: &domain.PaymentVerification{Status: "success", Reference: "ref", OrderID: "o"}},
	}}
	sleeps := &recordedSleeps{}
	svc := New(&stubProvider{}, verifier, nil, WithSleep(sleeps.sleep))

	v, err := svc.RetryVerification(context.Background(), "tok", "ref")
	require.NoError(t, err)
	assert.Equal(t, "o", v.OrderID)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
	assert.Equal(t, "tok", verifier.lastToken)
}

func TestRetryVerificationExhausts(t *testing.T) {
	verifier := &stubVerifier{steps: []verifyStep{{err: &backend.StatusError{StatusCode: 500}}}}
	sleeps := &recordedSleeps{}
	svc := New(&stubProvider{}, verifier, nil, WithSleep(sleeps.sleep))

	_, err := svc.RetryVerification(context.Background(), "", "ref")
	require.ErrorIs(t, err, ErrVerificationExhausted)
	assert.True(t, backend.IsTransient(err))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays, "no wait after the final attempt")
	assert.Equal(t, 3, verifier.calls)
}

func TestRetryVerificationStopsOnDecline(t *testing.T) {
	verifier := &stubVerifier{steps: []verifyStep{{v: &domain.PaymentVerification{Status: "failed"}}}}
	sleeps := &recordedSleeps{}
	svc := New(&stubProvider{}, verifier, nil, WithSleep(sleeps.sleep))

	_, err := svc.RetryVerification(context.Background(), "", "ref")
	assert.ErrorIs(t, err, domain.ErrPaymentDeclined)
	assert.Empty(t, sleeps.delays)
}

func TestRetryVerificationStopsOnClientError(t *testing.T) {
	verifier := &stubVerifier{steps: []verifyStep{{err: &backend.StatusError{StatusCode: 404}}}}
	sleeps := &recordedSleeps{}
	svc := New(&stubProvider{}, verifier, nil, WithSleep(sleeps.sleep))

	_, err := svc.RetryVerification(context.Background(), "", "ref")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrVerificationExhausted))
	assert.Empty(t, sleeps.delays)
}

func TestRetryVerificationRetriesPending(t *testing.T) {
	verifier := &stubVerifier{steps: []verifyStep{
		{v: &domain.PaymentVerification{Status: "pending"}},
		{v: &domain.PaymentVerification{Status: "success"}},
	}}
	svc := New(&stubProvider{}, verifier, nil, WithSleep((&recordedSleeps{}).sleep))

	v, err := svc.RetryVerification(context.Background(), "", "ref")
	require.NoError(t, err)
	assert.True(t, v.Succeeded())
}

func TestRetryVerificationHonoursContext(t *testing.T) {
	verifier := &stubVerifier{steps: []verifyStep{{err: &backend.StatusError{StatusCode: 500}}}}
	svc := New(&stubProvider{}, verifier, nil, WithRetry(3, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RetryVerification(ctx, "", "ref")
	assert.ErrorIs(t, err, context.Canceled)
}
