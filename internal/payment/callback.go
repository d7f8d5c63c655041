package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/signature"
)

// CallbackKind classifies the shape of an inbound hosted-payment callback.
type CallbackKind string

const (
	// CallbackPayment carries a completed payment or authorization result,
	// signed by the processor.
	CallbackPayment CallbackKind = "payment"

	// CallbackToken carries only a card token; the charge itself still has
	// to be created server side.
	CallbackToken CallbackKind = "token"
)

// Callback is the typed, validated form of the loosely-typed request
// parameters the processor posts back. Raw amount and date strings are kept
// verbatim because the signature covers the exact wire representation.
type Callback struct {
	Kind          CallbackKind
	Reference     string
	AmountMinor   int64
	RawAmount     string
	PaymentID     string
	PaymentDate   string
	PaymentStatus string
	AuthCode      string
	Signature     string
	CardToken     string
}

// ParseCallback turns untrusted request parameters into a typed callback.
// Unparseable input is rejected here, before any business logic runs.
func ParseCallback(values url.Values) (*Callback, error) {
	reference := values.Get("reference")
	rawAmount := values.Get("amount")
	if reference == "" || rawAmount == "" {
		return nil, fmt.Errorf("%w: reference and amount are required", ErrUnparseableCallback)
	}
	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil || amount < 0 {
		return nil, fmt.Errorf("%w: bad amount %q", ErrUnparseableCallback, rawAmount)
	}

	cb := &Callback{
		Reference:   reference,
		AmountMinor: amount,
		RawAmount:   rawAmount,
	}

	switch {
	case values.Get("paymentId") != "":
		cb.Kind = CallbackPayment
		cb.PaymentID = values.Get("paymentId")
		cb.PaymentDate = values.Get("paymentDate")
		cb.PaymentStatus = values.Get("paymentStatus")
		cb.AuthCode = values.Get("authCode")
		cb.Signature = values.Get("signature")
	case values.Get("cardToken") != "":
		cb.Kind = CallbackToken
		cb.CardToken = values.Get("cardToken")
	default:
		return nil, fmt.Errorf("%w: neither paymentId nor cardToken present", ErrUnparseableCallback)
	}
	return cb, nil
}

// Approved reports whether a payment-shaped callback carries an approval.
func (cb *Callback) Approved() bool {
	return cb.PaymentStatus == string(gateway.StatusApproved)
}

// ReconcileCallback verifies and applies an asynchronous hosted/embedded
// callback to the order, dispatching by the installation's transaction mode.
// Signature and amount are checked before any state change or gateway call.
func (m *Machine) ReconcileCallback(ctx context.Context, mode Mode, order *models.Order, cb *Callback) (*Outcome, error) {
	handler, ok := reconcileHandlers[mode]
	if !ok {
		return nil, fmt.Errorf("no reconcile handler for mode %s/%s", mode.Timing, mode.Integration)
	}
	if cb.Kind != handler.expect {
		return nil, fmt.Errorf("%w: %s callback not valid for mode %s/%s",
			ErrUnparseableCallback, cb.Kind, mode.Timing, mode.Integration)
	}

	if cb.Kind == CallbackPayment {
		err := signature.Verify(signature.Fields{
			Amount:        cb.RawAmount,
			Reference:     cb.Reference,
			PaymentID:     cb.PaymentID,
			PaymentDate:   cb.PaymentDate,
			PaymentStatus: cb.PaymentStatus,
			Signature:     cb.Signature,
		}, m.cfg.PrivateKey)
		if err != nil {
			m.log.LogSecurity("CALLBACK_SIGNATURE", fmt.Sprintf("order %s: %v", order.OrderID, err))
			return nil, err
		}
	}

	// Amount mismatch is a hard failure, rejected before any gateway call.
	if cb.AmountMinor != order.TotalMinorUnits {
		return nil, &AmountMismatchError{OrderID: order.OrderID, Expected: order.TotalMinorUnits, Got: cb.AmountMinor}
	}

	if order.PaymentState.Terminal() {
		return m.reconcileTerminal(order, cb)
	}

	return handler.apply(ctx, m, order, cb)
}

// reconcileTerminal handles a callback arriving for an order that already
// reached a terminal state: a matching outcome is an idempotent no-op, a
// conflicting one is rejected and flagged for manual reconciliation.
func (m *Machine) reconcileTerminal(order *models.Order, cb *Callback) (*Outcome, error) {
	matches := false
	if cb.Kind == CallbackPayment {
		if cb.Approved() {
			matches = (order.PaymentState == models.StatePaid || order.PaymentState == models.StateCaptured ||
				order.PaymentState == models.StateAuthorized) &&
				(order.PaymentID == cb.PaymentID || order.AuthorizationID == cb.PaymentID)
		} else {
			matches = order.PaymentState == models.StateDeclined || order.PaymentState == models.StateFailed
		}
	}

	if matches {
		m.log.LogCallback(order.OrderID, "replayed callback matches terminal state, no-op")
		return &Outcome{
			Approved: cb.Approved(),
			State:    order.PaymentState,
			Kind:     models.TxnPurchase,
		}, nil
	}

	m.log.LogSecurity("CALLBACK_CONFLICT",
		fmt.Sprintf("order %s in %s received conflicting callback (status %q, payment %q)",
			order.OrderID, order.PaymentState, cb.PaymentStatus, cb.PaymentID))
	out := &Outcome{Approved: false, State: order.PaymentState, Kind: models.TxnPurchase}
	out.signal(SignalManualReview)
	out.note("Conflicting gateway callback received; flagged for manual reconciliation")
	return out, ErrCallbackConflict
}
