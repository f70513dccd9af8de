package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/hostedpay"
	"storefront-checkout/internal/service/session"
)

type checkoutResponse struct {
	domain.CheckoutState
	Phase string `json:"phase"`
}

func newCheckoutResponse(state domain.CheckoutState) checkoutResponse {
	return checkoutResponse{CheckoutState: state, Phase: state.CurrentStep.Label()}
}

// checkoutStatus picks the status code for a state returned by Begin.
func checkoutStatus(state domain.CheckoutState) int {
	switch {
	case state.Running && state.Error != "":
		return http.StatusConflict
	case state.Running:
		return http.StatusAccepted
	case state.ErrorDetails != nil && state.ErrorDetails.Kind == domain.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

func (h *handlers) stageBuyNow(c *gin.Context) {
	var req lineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required", "field": "productId"})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	s := sessionFromContext(c)
	item, err := s.StageBuyNow(c.Request.Context(), req.ProductID, req.Quantity, req.Size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *handlers) clearBuyNow(c *gin.Context) {
	sessionFromContext(c).ClearBuyNow()
	c.Status(http.StatusNoContent)
}

// startCheckout runs the orchestrator for the session. Card payments answer
// 202 once the hosted page is ready; the client then polls GET /v1/checkout.
func (h *handlers) startCheckout(c *gin.Context) {
	var req session.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid checkout request"})
		return
	}
	s := sessionFromContext(c)
	state := s.Begin(c.Request.Context(), req)
	c.JSON(checkoutStatus(state), newCheckoutResponse(state))
}

func (h *handlers) checkoutState(c *gin.Context) {
	state := sessionFromContext(c).Checkout.State()
	c.JSON(http.StatusOK, newCheckoutResponse(state))
}

type cancelRequest struct {
	Reference string `json:"reference" binding:"required"`
}

// cancelPayment stands in for the shopper closing the payment popup.
func (h *handlers) cancelPayment(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required", "field": "reference"})
		return
	}
	s := sessionFromContext(c)
	state := s.Checkout.State()
	if state.Payment == nil || state.Payment.Reference != strings.TrimSpace(req.Reference) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no payment is waiting with that reference"})
		return
	}
	if h.deps.Payments == nil || !h.deps.Payments.Cancel(state.Payment.Reference) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no payment is waiting with that reference"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelled"})
}

// paymentNotification is the hosted payment provider's webhook.
func (h *handlers) paymentNotification(c *gin.Context) {
	var n hostedpay.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if h.deps.Payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments not configured"})
		return
	}
	delivered, err := h.deps.Payments.HandleNotification(n)
	if err != nil {
		h.logger.Warn("payment notification rejected", zap.String("reference", n.OrderID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := "ok"
	if !delivered {
		status = "ignored"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
