package billing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrSecretNotConfigured     = errors.New("webhook secret is not configured")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyCompleted = errors.New("payment already completed")
	ErrPaymentNotFinished      = errors.New("payment is not finished")
	ErrPaymentNotFoundInStore  = errors.New("payment not found in store")
	ErrUnknownStatus           = errors.New("unknown payment status")
	ErrInvalidPayload          = errors.New("invalid payment notification payload")
)

// NotFoundError reports the identifiers a lookup was attempted with.
type NotFoundError struct {
	Attempted Identifiers
	Manual    bool
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("payment not found (%s)", e.Attempted)
}

func (e *NotFoundError) Is(target error) bool {
	if target == ErrPaymentNotFound {
		return true
	}
	return e.Manual && target == ErrPaymentNotFoundInStore
}

// NotFinishedError carries the authoritative status of a payment that could
// not be confirmed manually.
type NotFinishedError struct {
	PaymentID string
	Status    string
}

func (e *NotFinishedError) Error() string {
	return fmt.Sprintf("payment %s is %q, not finished", e.PaymentID, e.Status)
}

func (e *NotFinishedError) Unwrap() error { return ErrPaymentNotFinished }

func (i Identifiers) String() string {
	var parts []string
	if i.ExternalID != "" {
		parts = append(parts, "external_id="+i.ExternalID)
	}
	if i.InvoiceID != "" {
		parts = append(parts, "invoice_id="+i.InvoiceID)
	}
	if i.OrderID != "" {
		parts = append(parts, "order_id="+i.OrderID)
	}
	if i.GatewayPaymentID != "" {
		parts = append(parts, "payment_id="+i.GatewayPaymentID)
	}
	if len(parts) == 0 {
		return "no identifiers"
	}
	return strings.Join(parts, ", ")
}
