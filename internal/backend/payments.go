package backend

import (
	"context"
	"net/http"
	"net/url"

	"storefront-checkout/internal/domain"
)

// VerifyPayment asks the payment service to confirm a provider reference.
func (c *Client) VerifyPayment(ctx context.Context, token, reference string) (*domain.PaymentVerification, error) {
	var out domain.PaymentVerification
	if err := c.do(ctx, http.MethodGet, "/payments/verify/"+url.PathEscape(reference), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
