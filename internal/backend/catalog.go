package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"storefront-checkout/internal/domain"
)

// GetProduct fetches a product for line-item denormalization.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var out domain.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), "", nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}
