package payment

import (
	"context"
	"fmt"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/models"
)

// SignalKind names a side effect the caller must apply after a transition.
type SignalKind string

const (
	SignalMarkPaid       SignalKind = "mark_paid"
	SignalMarkProcessing SignalKind = "mark_processing"
	SignalMarkFailed     SignalKind = "mark_failed"
	SignalRecordNote     SignalKind = "record_note"
	SignalRestock        SignalKind = "restock"
	SignalManualReview   SignalKind = "manual_review"
)

type Signal struct {
	Kind SignalKind
	Note string
}

// Outcome is the result of one state machine operation. The order passed in
// has already been mutated to the new state; Signals carry the side effects
// the service layer still has to apply. Business declines are outcomes with
// Approved=false and a nil error, never hard errors.
type Outcome struct {
	Approved    bool
	State       models.PaymentState
	Kind        models.TransactionKind
	GatewayRef  string
	AuthCode    string
	AmountMinor int64
	Signals     []Signal
}

func (o *Outcome) note(format string, args ...interface{}) {
	o.Signals = append(o.Signals, Signal{Kind: SignalRecordNote, Note: fmt.Sprintf(format, args...)})
}

func (o *Outcome) signal(kind SignalKind) {
	o.Signals = append(o.Signals, Signal{Kind: kind})
}

// Machine computes payment state transitions. It talks to the gateway client
// and mutates the order it is handed; persistence is the caller's job. The
// machine performs at most one gateway attempt per invocation.
type Machine struct {
	gw  gateway.Client
	cfg config.GatewayConfig
	log *logger.Logger
}

func NewMachine(gw gateway.Client, cfg config.GatewayConfig, log *logger.Logger) *Machine {
	return &Machine{gw: gw, cfg: cfg, log: log}
}

// BeginPurchase charges the full order amount immediately. On approval the
// payment id is recorded once and the order moves to Paid; declines move it to
// Declined and are returned as ordinary outcomes.
func (m *Machine) BeginPurchase(ctx context.Context, order *models.Order, ref TokenRef) (*Outcome, error) {
	if err := ValidateTransition(order.OrderID, order.PaymentState, models.StatePaid); err != nil {
		return nil, err
	}
	if order.TotalMinorUnits < gateway.MinimumAmountMinor {
		return nil, &gateway.ValidationError{FieldErrors: []gateway.FieldError{{
			Field:   "amount",
			Code:    "below_minimum",
			Message: fmt.Sprintf("minimum allowed order total is %d minor units", gateway.MinimumAmountMinor),
		}}}
	}

	req := gateway.PaymentRequest{
		AmountMinor: order.TotalMinorUnits,
		Currency:    order.Currency,
		Reference:   order.OrderID,
		Description: fmt.Sprintf("Order #%s", order.OrderID),
	}
	applyToken(&req, ref)

	result, err := m.gw.CreatePayment(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.applyPurchaseResult(order, result)
}

// applyPurchaseResult validates an untrusted gateway result and applies it to
// the order. Shared by the synchronous purchase path and callback
// reconciliation.
func (m *Machine) applyPurchaseResult(order *models.Order, result *gateway.Result) (*Outcome, error) {
	if result.AmountMinor != 0 && result.AmountMinor != order.TotalMinorUnits {
		return nil, &AmountMismatchError{OrderID: order.OrderID, Expected: order.TotalMinorUnits, Got: result.AmountMinor}
	}

	out := &Outcome{
		Kind:        models.TxnPurchase,
		GatewayRef:  result.ID,
		AuthCode:    result.AuthCode,
		AmountMinor: order.TotalMinorUnits,
	}

	if !result.Approved() {
		order.PaymentState = models.StateDeclined
		out.Approved = false
		out.State = models.StateDeclined
		out.signal(SignalMarkFailed)
		reason := result.DeclineReason
		if reason == "" {
			reason = "payment was declined - please try another card"
		}
		out.note("Payment declined: %s", reason)
		m.log.LogPayment("PURCHASE", order.OrderID, "declined by gateway")
		return out, nil
	}

	if err := setReference(order.OrderID, &order.PaymentID, result.ID, "payment"); err != nil {
		return nil, err
	}
	order.PaymentState = models.StatePaid
	out.Approved = true
	out.State = models.StatePaid
	out.signal(SignalMarkPaid)
	out.note("Payment approved (ID: %s, Auth Code: %s)", result.ID, result.AuthCode)
	m.log.LogPayment("PURCHASE", order.OrderID, fmt.Sprintf("approved, payment id %s", result.ID))
	return out, nil
}

// BeginAuthorization places a hold on funds without transferring them. The
// order moves to Authorized and is marked processing, not paid, since nothing
// has been captured yet.
func (m *Machine) BeginAuthorization(ctx context.Context, order *models.Order, ref TokenRef) (*Outcome, error) {
	if err := ValidateTransition(order.OrderID, order.PaymentState, models.StateAuthorized); err != nil {
		return nil, err
	}
	if order.TotalMinorUnits < gateway.MinimumAmountMinor {
		return nil, &gateway.ValidationError{FieldErrors: []gateway.FieldError{{
			Field:   "amount",
			Code:    "below_minimum",
			Message: fmt.Sprintf("minimum allowed order total is %d minor units", gateway.MinimumAmountMinor),
		}}}
	}

	req := gateway.PaymentRequest{
		AmountMinor: order.TotalMinorUnits,
		Currency:    order.Currency,
		Reference:   order.OrderID,
		Description: fmt.Sprintf("Order #%s", order.OrderID),
	}
	applyToken(&req, ref)

	result, err := m.gw.CreateAuthorization(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.applyAuthorizationResult(order, result)
}

func (m *Machine) applyAuthorizationResult(order *models.Order, result *gateway.Result) (*Outcome, error) {
	if result.AmountMinor != 0 && result.AmountMinor != order.TotalMinorUnits {
		return nil, &AmountMismatchError{OrderID: order.OrderID, Expected: order.TotalMinorUnits, Got: result.AmountMinor}
	}

	out := &Outcome{
		Kind:        models.TxnAuthorization,
		GatewayRef:  result.ID,
		AuthCode:    result.AuthCode,
		AmountMinor: order.TotalMinorUnits,
	}

	if !result.Approved() {
		order.PaymentState = models.StateDeclined
		out.Approved = false
		out.State = models.StateDeclined
		out.signal(SignalMarkFailed)
		out.note("Authorization declined")
		m.log.LogPayment("AUTHORIZE", order.OrderID, "declined by gateway")
		return out, nil
	}

	if err := setReference(order.OrderID, &order.AuthorizationID, result.ID, "authorization"); err != nil {
		return nil, err
	}
	order.PaymentState = models.StateAuthorized
	order.Captured = false
	out.Approved = true
	out.State = models.StateAuthorized
	out.signal(SignalMarkProcessing)
	out.note("Authorization approved (ID: %s) - funds on hold, capture required", result.ID)
	m.log.LogPayment("AUTHORIZE", order.OrderID, fmt.Sprintf("approved, authorization id %s", result.ID))
	return out, nil
}

// Capture converts an authorization into a funds transfer. A repeated capture
// against an order the remote reports as already captured resolves to the same
// Captured state instead of an operator-visible error.
func (m *Machine) Capture(ctx context.Context, order *models.Order) (*Outcome, error) {
	// Repeat of a capture that already fully applied: idempotent success.
	if order.PaymentState == models.StateCaptured && order.Captured {
		m.log.LogPayment("CAPTURE", order.OrderID, "already captured, no-op")
		return &Outcome{
			Approved:    true,
			State:       models.StateCaptured,
			Kind:        models.TxnCapture,
			GatewayRef:  order.CaptureID,
			AmountMinor: order.TotalMinorUnits,
		}, nil
	}
	if order.PaymentState != models.StateAuthorized || order.Captured {
		return nil, &InvalidStateError{
			OrderID: order.OrderID,
			From:    order.PaymentState,
			To:      models.StateCaptured,
			Reason:  "capture requires an uncaptured authorization",
		}
	}
	if order.AuthorizationID == "" {
		return nil, &InvalidStateError{
			OrderID: order.OrderID,
			From:    order.PaymentState,
			To:      models.StateCaptured,
			Reason:  "no authorization reference on order",
		}
	}

	out := &Outcome{
		Kind:        models.TxnCapture,
		AmountMinor: order.TotalMinorUnits,
	}

	result, err := m.gw.Capture(ctx, gateway.CaptureRequest{
		AuthorizationID: order.AuthorizationID,
		AmountMinor:     order.TotalMinorUnits,
		Currency:        order.Currency,
		Reference:       order.OrderID,
	})
	if err != nil {
		// The processor says the authorization was already captured, e.g. a
		// retry after a lost response. Resolve to Captured instead of
		// surfacing a fault.
		if m.cfg.AlreadyCapturedCode != "" && gateway.ErrorCode(err) == m.cfg.AlreadyCapturedCode {
			order.PaymentState = models.StateCaptured
			order.Captured = true
			out.Approved = true
			out.State = models.StateCaptured
			out.signal(SignalMarkPaid)
			out.note("Capture already applied at the processor; order reconciled as captured")
			m.log.LogPayment("CAPTURE", order.OrderID, "remote reported already captured, reconciled")
			return out, nil
		}
		return nil, err
	}

	if !result.Approved() {
		// The authorization hold survives a declined capture; the operator
		// can retry or void.
		out.Approved = false
		out.State = order.PaymentState
		out.GatewayRef = result.ID
		out.note("Capture declined by gateway")
		m.log.LogPayment("CAPTURE", order.OrderID, "declined by gateway")
		return out, nil
	}

	if err := setReference(order.OrderID, &order.CaptureID, result.ID, "capture"); err != nil {
		return nil, err
	}
	if order.PaymentID == "" {
		order.PaymentID = result.ID
	}
	order.PaymentState = models.StateCaptured
	order.Captured = true
	out.Approved = true
	out.State = models.StateCaptured
	out.GatewayRef = result.ID
	out.AuthCode = result.AuthCode
	// Mark paid even though the order sits in a processing state: capture is
	// the one path allowed to complete payment from there.
	out.signal(SignalMarkPaid)
	out.note("Capture approved (ID: %s)", result.ID)
	m.log.LogPayment("CAPTURE", order.OrderID, fmt.Sprintf("approved, capture id %s", result.ID))
	return out, nil
}

// Void cancels an uncaptured authorization, releasing the hold. No money moved
// so the restock signal is refund-shaped but carries no refund.
func (m *Machine) Void(ctx context.Context, order *models.Order) (*Outcome, error) {
	if order.PaymentState != models.StateAuthorized || order.Captured {
		return nil, &InvalidStateError{
			OrderID: order.OrderID,
			From:    order.PaymentState,
			To:      models.StateVoided,
			Reason:  "void requires an uncaptured authorization",
		}
	}
	if order.AuthorizationID == "" {
		return nil, &InvalidStateError{
			OrderID: order.OrderID,
			From:    order.PaymentState,
			To:      models.StateVoided,
			Reason:  "no authorization reference on order",
		}
	}

	if err := m.gw.VoidAuthorization(ctx, order.AuthorizationID); err != nil {
		return nil, err
	}

	order.PaymentState = models.StateVoided
	out := &Outcome{
		Approved:   true,
		State:      models.StateVoided,
		Kind:       models.TxnVoid,
		GatewayRef: order.AuthorizationID,
	}
	out.signal(SignalRestock)
	out.note("Authorization reversed (ID: %s) - no funds were captured", order.AuthorizationID)
	m.log.LogPayment("VOID", order.OrderID, "authorization reversed")
	return out, nil
}

// Refund returns part or all of a captured payment. The running refund total
// can never exceed the order total.
func (m *Machine) Refund(ctx context.Context, order *models.Order, amount int64, reason string) (*Outcome, error) {
	paymentRef := order.PaymentID
	if paymentRef == "" {
		paymentRef = order.CaptureID
	}
	if paymentRef == "" {
		return nil, &InvalidStateError{
			OrderID: order.OrderID,
			From:    order.PaymentState,
			To:      models.StateRefunded,
			Reason:  "order has no payment or capture reference to refund",
		}
	}
	if amount <= 0 || amount > order.RemainingRefundable() {
		return nil, &InvalidStateError{
			OrderID: order.OrderID,
			From:    order.PaymentState,
			To:      models.StateRefunded,
			Reason: fmt.Sprintf("refund of %d exceeds remaining refundable balance %d",
				amount, order.RemainingRefundable()),
		}
	}
	target := models.StatePartiallyRefunded
	if order.RemainingRefundable() == amount {
		target = models.StateRefunded
	}
	if err := ValidateTransition(order.OrderID, order.PaymentState, target); err != nil {
		return nil, err
	}

	result, err := m.gw.CreateRefund(ctx, gateway.RefundRequest{
		PaymentID:   paymentRef,
		AmountMinor: amount,
		Reason:      reason,
		Reference:   order.OrderID,
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Kind:        models.TxnRefund,
		GatewayRef:  result.ID,
		AmountMinor: amount,
	}

	if !result.Approved() {
		out.Approved = false
		out.State = order.PaymentState
		out.note("Refund was declined by the gateway")
		m.log.LogPayment("REFUND", order.OrderID, "declined by gateway")
		return out, nil
	}

	order.RefundedMinorUnits += amount
	order.PaymentState = target
	out.Approved = true
	out.State = target
	out.note("Refunded %d (%s): %s", amount, result.ID, reason)
	m.log.LogPayment("REFUND", order.OrderID,
		fmt.Sprintf("approved, %d of %d refunded", order.RefundedMinorUnits, order.TotalMinorUnits))
	return out, nil
}

// setReference assigns a gateway reference that may be set at most once.
func setReference(orderID string, slot *string, value, name string) error {
	if value == "" {
		return fmt.Errorf("order %s: gateway returned empty %s id", orderID, name)
	}
	if *slot != "" && *slot != value {
		return &InvalidStateError{
			OrderID: orderID,
			Reason:  fmt.Sprintf("%s reference already set to %s, refusing to overwrite with %s", name, *slot, value),
		}
	}
	*slot = value
	return nil
}
