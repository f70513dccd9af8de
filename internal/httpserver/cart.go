package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/money"
	"storefront-checkout/internal/service/checkout"
	"storefront-checkout/internal/service/session"
)

type lineRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type cartLine struct {
	domain.CartItem
	LineTotal float64 `json:"lineTotal"`
	Display   string  `json:"display"`
}

type cartResponse struct {
	Owner         domain.CartOwner `json:"owner"`
	Authenticated bool             `json:"authenticated"`
	Items         []cartLine       `json:"items"`
	TotalItems    int              `json:"totalItems"`
	Currency      string           `json:"currency"`
	Subtotal      float64          `json:"subtotal"`
	Tax           float64          `json:"tax"`
	DeliveryFee   float64          `json:"deliveryFee"`
	Total         float64          `json:"total"`
	Display       string           `json:"display"`
	BuyNow        *domain.CartItem `json:"buyNow,omitempty"`
}

// displayCurrency reads ?currency=, defaulting to the base currency.
func displayCurrency(c *gin.Context) (string, bool) {
	cur := strings.ToUpper(strings.TrimSpace(c.Query("currency")))
	if cur == "" {
		return money.Base, true
	}
	return cur, money.Supported(cur)
}

func (h *handlers) respondCart(c *gin.Context, s *session.Session) {
	cur, ok := displayCurrency(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported currency", "field": "currency"})
		return
	}
	c.JSON(http.StatusOK, buildCart(s, h.deps.Pricing, cur))
}

func buildCart(s *session.Session, pricing checkout.Pricing, cur string) cartResponse {
	items := s.Cart.Items()
	conv := func(d decimal.Decimal) decimal.Decimal { return money.ConvertDecimal(d, money.Base, cur) }

	lines := make([]cartLine, 0, len(items))
	for _, item := range items {
		lineTotal := conv(item.LineTotal())
		item.Price = money.Convert(item.Price, money.Base, cur)
		lines = append(lines, cartLine{
			CartItem:  item,
			LineTotal: lineTotal.InexactFloat64(),
			Display:   money.FormatDecimal(lineTotal, cur),
		})
	}

	q := pricing.Quote(items)
	total := conv(q.Total)
	return cartResponse{
		Owner:         s.Cart.Owner(),
		Authenticated: s.Cart.IsAuthenticated(),
		Items:         lines,
		TotalItems:    s.Cart.TotalItems(),
		Currency:      cur,
		Subtotal:      conv(q.Subtotal).InexactFloat64(),
		Tax:           conv(q.Tax).InexactFloat64(),
		DeliveryFee:   conv(q.DeliveryFee).InexactFloat64(),
		Total:         total.InexactFloat64(),
		Display:       money.FormatDecimal(total, cur),
		BuyNow:        s.BuyNow(),
	}
}

func (h *handlers) getCart(c *gin.Context) {
	h.respondCart(c, sessionFromContext(c))
}

func (h *handlers) addItem(c *gin.Context) {
	var req lineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required", "field": "productId"})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	s := sessionFromContext(c)
	if err := s.Cart.AddToCart(c.Request.Context(), req.ProductID, req.Quantity, req.Size); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondCart(c, s)
}

// updateItem sets a line's quantity; zero or less removes it.
func (h *handlers) updateItem(c *gin.Context) {
	var req lineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required", "field": "productId"})
		return
	}
	s := sessionFromContext(c)
	s.Cart.UpdateQuantity(c.Request.Context(), req.ProductID, req.Size, req.Quantity)
	h.respondCart(c, s)
}

func (h *handlers) removeItem(c *gin.Context) {
	productID := strings.TrimSpace(c.Query("productId"))
	if productID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required", "field": "productId"})
		return
	}
	s := sessionFromContext(c)
	s.Cart.RemoveFromCart(c.Request.Context(), productID, c.Query("size"))
	h.respondCart(c, s)
}

func (h *handlers) clearCart(c *gin.Context) {
	s := sessionFromContext(c)
	s.Cart.ClearCart(c.Request.Context())
	h.respondCart(c, s)
}

func (h *handlers) syncCart(c *gin.Context) {
	s := sessionFromContext(c)
	if !s.Cart.IsAuthenticated() {
		c.JSON(http.StatusConflict, gin.H{"error": "sign in to sync your cart"})
		return
	}
	if err := s.Cart.SyncCart(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondCart(c, s)
}

func (h *handlers) convertCurrency(c *gin.Context) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Query("amount")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a number", "field": "amount"})
		return
	}
	from := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("from", money.Base)))
	to := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("to", money.Base)))
	if !money.Supported(from) || !money.Supported(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported currency"})
		return
	}
	converted := money.ConvertDecimal(amount, from, to)
	c.JSON(http.StatusOK, gin.H{
		"amount":    amount.Round(2).InexactFloat64(),
		"from":      from,
		"to":        to,
		"converted": converted.InexactFloat64(),
		"display":   money.FormatDecimal(converted, to),
	})
}
