package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrPaymentCancelled is returned when the shopper closes the payment popup.
	ErrPaymentCancelled = errors.New("payment cancelled")
	// ErrPaymentDeclined is a business decline; it is never retried.
	ErrPaymentDeclined = errors.New("payment declined")
)

// ErrorKind groups checkout failures for rendering.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindAvailability ErrorKind = "availability"
	KindOrder        ErrorKind = "order"
	KindPayment      ErrorKind = "payment"
	KindNetwork      ErrorKind = "network"
)

// ValidationError is returned before any network call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// UnavailableLine names a cart line that failed the stock check.
type UnavailableLine struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// UnavailableError lists every line the shopper has to change.
type UnavailableError struct {
	Lines []UnavailableLine
}

func (e *UnavailableError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		label := line.Name
		if label == "" {
			label = line.ProductID
		}
		if line.Size != "" {
			label = fmt.Sprintf("%s (size %s)", label, line.Size)
		}
		if line.Available > 0 {
			parts = append(parts, fmt.Sprintf("%s: only %d available", label, line.Available))
		} else {
			parts = append(parts, fmt.Sprintf("%s: out of stock", label))
		}
	}
	return "Some items are no longer available: " + strings.Join(parts, "; ")
}

// OrderReason classifies an order-creation failure.
type OrderReason string

const (
	OrderReasonInsufficientStock OrderReason = "insufficient_stock"
	OrderReasonInvalidProduct    OrderReason = "invalid_product"
	OrderReasonOther             OrderReason = "other"
)

// OrderError carries a shopper-facing message and remediation hint.
type OrderError struct {
	Reason  OrderReason
	Message string
	Hint    string
	Err     error
}

func (e *OrderError) Error() string {
	return e.Message
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// PaymentError is a hard payment failure.
type PaymentError struct {
	Reason string
	Err    error
}

func (e *PaymentError) Error() string {
	if e.Reason == "" {
		return "payment failed"
	}
	return "payment failed: " + e.Reason
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}
