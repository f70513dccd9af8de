package backend

import (
	"context"
	"net/http"

	"storefront-checkout/internal/domain"
)

// CheckStock checks a single line.
func (c *Client) CheckStock(ctx context.Context, item domain.StockCheckItem) (*domain.StockCheckResult, error) {
	var out domain.StockCheckResult
	if err := c.do(ctx, http.MethodPost, "/inventory/check", "", item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkCheckStock checks every line in one request.
func (c *Client) BulkCheckStock(ctx context.Context, items []domain.StockCheckItem) (*domain.BulkStockResult, error) {
	body := struct {
		Items []domain.StockCheckItem `json:"items"`
	}{Items: items}
	var out domain.BulkStockResult
	if err := c.do(ctx, http.MethodPost, "/inventory/bulk-check", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
