package checkout

import (
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

// Pricing holds the order surcharges, all in the base currency.
type Pricing struct {
	TaxRate               decimal.Decimal
	DeliveryFee           decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
}

// Breakdown is the authoritative total of a checkout attempt.
type Breakdown struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// Quote recomputes the totals from the lines. Delivery is free once the
// subtotal reaches a positive threshold.
func (p Pricing) Quote(items []domain.CartItem) Breakdown {
	subtotal := domain.Subtotal(items)
	tax := subtotal.Mul(p.TaxRate).Round(2)
	fee := p.DeliveryFee.Round(2)
	if p.FreeDeliveryThreshold.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeDeliveryThreshold) {
		fee = decimal.Zero
	}
	return Breakdown{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Total:       subtotal.Add(tax).Add(fee),
	}
}
