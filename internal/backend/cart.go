package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"storefront-checkout/internal/domain"
)

var errUnrecognizedCart = errors.New("unrecognized cart response")

// GetCart reads the Server Snapshot.
func (c *Client) GetCart(ctx context.Context, token string) domain.CartResult {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/cart", token, nil, &raw)
	return cartResult(raw, err)
}

// AddCartItem adds a line to the server cart.
func (c *Client) AddCartItem(ctx context.Context, token string, line domain.CartLineInput) domain.CartResult {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, "/cart/items", token, line, &raw)
	return cartResult(raw, err)
}

// UpdateCartItem sets a line's quantity on the server cart.
func (c *Client) UpdateCartItem(ctx context.Context, token string, line domain.CartLineInput) domain.CartResult {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPut, "/cart/items", token, line, &raw)
	return cartResult(raw, err)
}

// RemoveCartItem deletes a line from the server cart.
func (c *Client) RemoveCartItem(ctx context.Context, token string, key domain.LineKey) domain.CartResult {
	q := url.Values{}
	q.Set("productId", key.ProductID)
	if key.Size != "" {
		q.Set("size", key.Size)
	}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodDelete, "/cart/items?"+q.Encode(), token, nil, &raw)
	return cartResult(raw, err)
}

// ClearCart empties the server cart.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/cart", token, nil, nil)
}

// SyncCart submits the Local Snapshot lines in one batch and returns the
// resulting server list.
func (c *Client) SyncCart(ctx context.Context, token string, lines []domain.CartLineInput) domain.CartResult {
	if lines == nil {
		lines = []domain.CartLineInput{}
	}
	body := struct {
		Items []domain.CartLineInput `json:"items"`
	}{Items: lines}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, "/cart/sync", token, body, &raw)
	return cartResult(raw, err)
}

func cartResult(raw json.RawMessage, err error) domain.CartResult {
	if err != nil {
		if IsAuthError(err) {
			return domain.AuthExpiredResult(err)
		}
		return domain.FailureResult(err)
	}
	items, item, err := parseCart(raw)
	switch {
	case err != nil:
		return domain.FailureResult(err)
	case item != nil:
		return domain.ItemEchoResult(*item)
	default:
		return domain.ItemsResult(items)
	}
}

// parseCart accepts a bare list, {items: [...]}, {cart: {items: [...]}} or
// a single echoed {item: {...}}.
func parseCart(raw json.RawMessage) ([]domain.CartItem, *domain.CartItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil, errUnrecognizedCart
	}
	if raw[0] == '[' {
		var items []domain.CartItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, err
		}
		return items, nil, nil
	}

	var envelope struct {
		Items *[]domain.CartItem `json:"items"`
		Item  *domain.CartItem   `json:"item"`
		Cart  *struct {
			Items *[]domain.CartItem `json:"items"`
		} `json:"cart"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, err
	}
	switch {
	case envelope.Items != nil:
		return *envelope.Items, nil, nil
	case envelope.Cart != nil && envelope.Cart.Items != nil:
		return *envelope.Cart.Items, nil, nil
	case envelope.Item != nil:
		return nil, envelope.Item, nil
	}
	return nil, nil, errUnrecognizedCart
}
