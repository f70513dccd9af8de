package checkout

import (
	"strings"

	"storefront-checkout/internal/domain"
)

const (
	msgAlreadyRunning  = "A checkout is already in progress."
	msgPaymentMismatch = "We could not confirm this payment for your order. Please contact support before paying again."
)

// classifyOrderError maps an order-service failure onto a shopper message.
func classifyOrderError(err error) *domain.OrderError {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "insufficient stock"):
		return &domain.OrderError{
			Reason:  domain.OrderReasonInsufficientStock,
			Message: "Some items sold out while you were checking out.",
			Hint:    "Refresh your cart and adjust the quantities.",
			Err:     err,
		}
	case strings.Contains(text, "invalid product"):
		return &domain.OrderError{
			Reason:  domain.OrderReasonInvalidProduct,
			Message: "One of the products in your cart is no longer sold.",
			Hint:    "Refresh your cart to remove it.",
			Err:     err,
		}
	default:
		return &domain.OrderError{
			Reason:  domain.OrderReasonOther,
			Message: "We could not place your order. Please try again.",
			Err:     err,
		}
	}
}
