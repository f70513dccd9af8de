package domain

import "time"

// CheckoutStep is one state of the checkout state machine.
type CheckoutStep string

const (
	StepValidating        CheckoutStep = "validating"
	StepValidatingStock   CheckoutStep = "validating-stock"
	StepCreatingOrder     CheckoutStep = "creating-order"
	StepProcessingPayment CheckoutStep = "processing-payment"
	StepCompleted         CheckoutStep = "completed"
)

// Label is the progress phase shown to the shopper.
func (s CheckoutStep) Label() string {
	switch s {
	case StepValidatingStock:
		return "Checking stock…"
	case StepCreatingOrder:
		return "Placing order…"
	case StepProcessingPayment:
		return "Processing payment…"
	case StepCompleted:
		return "Order placed"
	default:
		return "Review your details"
	}
}

// ErrorDetails carries structured context for a halted checkout.
type ErrorDetails struct {
	Kind        ErrorKind          `json:"kind"`
	Field       string             `json:"field,omitempty"`
	Unavailable []UnavailableLine  `json:"unavailable,omitempty"`
	Hint        string             `json:"hint,omitempty"`
	Results     []StockCheckResult `json:"-"`
}

// CheckoutState is the single mutable control record of a checkout.
type CheckoutState struct {
	CurrentStep  CheckoutStep   `json:"currentStep"`
	Running      bool           `json:"running"`
	Error        string         `json:"error,omitempty"`
	ErrorDetails *ErrorDetails  `json:"errorDetails,omitempty"`
	Notice       string         `json:"notice,omitempty"`
	OrderID      string         `json:"orderId,omitempty"`
	Payment      *PaymentPrompt `json:"payment,omitempty"`
	RedirectTo   string         `json:"redirectTo,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
