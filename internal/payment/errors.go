package payment

import (
	"errors"
	"fmt"

	"ms-payment-gateway/internal/models"
)

// Sentinel errors for the payment core.
var (
	// ErrCallbackConflict means a callback implied a different outcome than
	// the order's terminal state. The order is flagged for manual
	// reconciliation and never overwritten.
	ErrCallbackConflict = errors.New("callback conflicts with terminal order state")

	// ErrUnparseableCallback means the inbound request params could not be
	// parsed into a typed callback. Rejected before any business logic.
	ErrUnparseableCallback = errors.New("callback is unparseable")

	// ErrMissingCustomerRef means a scheduled charge was attempted for an
	// order with no stored customer reference.
	ErrMissingCustomerRef = errors.New("order has no stored customer reference")
)

// InvalidStateError reports a transition attempted from a state that does not
// permit it, such as a double capture or a refund past the remaining balance.
type InvalidStateError struct {
	OrderID string
	From    models.PaymentState
	To      models.PaymentState
	Reason  string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("order %s: invalid transition from %s: %s", e.OrderID, e.From, e.Reason)
	}
	return fmt.Sprintf("order %s: invalid transition from %s to %s", e.OrderID, e.From, e.To)
}

// AmountMismatchError means a callback or gateway result carried an amount
// different from the order total. It is rejected before any gateway call.
type AmountMismatchError struct {
	OrderID  string
	Expected int64
	Got      int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order %s: amount mismatch, expected %d got %d", e.OrderID, e.Expected, e.Got)
}

func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
