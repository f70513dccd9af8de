package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"storefront-checkout/internal/domain"
)

// ErrMissingOrderID is returned when the order service answers without an id.
var ErrMissingOrderID = errors.New("order service returned no order id")

// CreateOrder submits an order. A response without an id is a failure
// whatever the status code.
func (c *Client) CreateOrder(ctx context.Context, token string, in domain.CreateOrderInput) (*domain.Order, error) {
	var out domain.Order
	if err := c.do(ctx, http.MethodPost, "/orders", token, in, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, ErrMissingOrderID
	}
	return &out, nil
}

// GetOrder reads an order back by id.
func (c *Client) GetOrder(ctx context.Context, token, id string) (*domain.Order, error) {
	var out domain.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), token, nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}
