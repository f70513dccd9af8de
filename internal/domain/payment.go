package domain

// PaymentRequest is what the checkout hands to the payment gateway. Amount is
// in the base currency; minor units are derived at the provider boundary.
type PaymentRequest struct {
	Amount     float64
	Email      string
	OrderID    string
	CustomerID string
	Metadata   map[string]string
	// OnPrompt receives the hosted page location once the provider has one.
	OnPrompt func(PaymentPrompt)
}

// ProviderRequest is a PaymentRequest after minor-unit conversion.
type ProviderRequest struct {
	AmountMinor int64
	Email       string
	OrderID     string
	CustomerID  string
	Metadata    map[string]string
	OnPrompt    func(PaymentPrompt)
}

// PaymentPrompt tells the shopper where to complete the payment.
type PaymentPrompt struct {
	Reference string `json:"reference"`
	URL       string `json:"url"`
}

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeCancelled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// PaymentOutcome is Success(reference) | Cancelled | Failed(reason).
type PaymentOutcome struct {
	Kind      OutcomeKind
	Reference string
	Reason    string
}

func PaymentSucceeded(reference string) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeSuccess, Reference: reference}
}

func PaymentCancelled(reference string) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeCancelled, Reference: reference}
}

func PaymentFailed(reference, reason string) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeFailed, Reference: reference, Reason: reason}
}

// PaymentVerification is the payment service's view of a reference.
type PaymentVerification struct {
	Status    string  `json:"status"`
	Reference string  `json:"reference"`
	OrderID   string  `json:"orderId"`
	Amount    float64 `json:"amount"`
}

// Succeeded reports whether the provider settled the payment.
func (v PaymentVerification) Succeeded() bool {
	return v.Status == "success"
}
