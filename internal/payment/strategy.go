package payment

import (
	"context"
	"fmt"
	"strconv"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/models"
)

// ChargeTiming says when funds move: immediately, or on a later manual
// capture within the processor's authorization window.
type ChargeTiming string

const (
	TimingPurchase  ChargeTiming = "purchase"
	TimingAuthorize ChargeTiming = "authorize"
)

// Integration says how the processor's payment UI is reached: a full-page or
// modal redirect, or an iframe posting through a same-origin form.
type Integration string

const (
	IntegrationModal    Integration = "modal"
	IntegrationEmbedded Integration = "embedded"
)

// Mode is the per-installation combination of both axes, fixed at
// configuration time.
type Mode struct {
	Timing      ChargeTiming
	Integration Integration
}

// ModeFromConfig validates the configured mode at startup. An unknown
// combination is a configuration error, not a runtime fallthrough.
func ModeFromConfig(cfg config.GatewayConfig) (Mode, error) {
	mode := Mode{Timing: ChargeTiming(cfg.TxnMode), Integration: Integration(cfg.Integration)}
	if _, ok := reconcileHandlers[mode]; !ok {
		return Mode{}, fmt.Errorf("unsupported gateway mode %q/%q", cfg.TxnMode, cfg.Integration)
	}
	return mode, nil
}

// reconcileHandler binds one mode combination to the callback shape it expects
// and the transition that applies it. One explicit handler per combination
// instead of conditional sprawl.
type reconcileHandler struct {
	expect CallbackKind
	apply  func(ctx context.Context, m *Machine, order *models.Order, cb *Callback) (*Outcome, error)
}

var reconcileHandlers = map[Mode]reconcileHandler{
	{TimingPurchase, IntegrationModal}:    {expect: CallbackPayment, apply: reconcilePurchase},
	{TimingPurchase, IntegrationEmbedded}: {expect: CallbackPayment, apply: reconcilePurchase},
	{TimingAuthorize, IntegrationModal}:   {expect: CallbackPayment, apply: reconcileAuthorization},
	{TimingAuthorize, IntegrationEmbedded}: {
		expect: CallbackToken,
		apply: func(ctx context.Context, m *Machine, order *models.Order, cb *Callback) (*Outcome, error) {
			// The iframe only delivered a card token; the authorization is
			// created server side now.
			return m.BeginAuthorization(ctx, order, CardToken(cb.CardToken))
		},
	},
}

// reconcilePurchase applies a signed purchase-result callback: the processor
// already took the funds (or declined).
func reconcilePurchase(ctx context.Context, m *Machine, order *models.Order, cb *Callback) (*Outcome, error) {
	out := &Outcome{
		Kind:        models.TxnPurchase,
		GatewayRef:  cb.PaymentID,
		AuthCode:    cb.AuthCode,
		AmountMinor: cb.AmountMinor,
	}

	if !cb.Approved() {
		if err := ValidateTransition(order.OrderID, order.PaymentState, models.StateFailed); err != nil {
			return nil, err
		}
		order.PaymentState = models.StateFailed
		out.Approved = false
		out.State = models.StateFailed
		out.signal(SignalMarkFailed)
		out.note("Payment was declined by the processor (status %s)", cb.PaymentStatus)
		return out, nil
	}

	if err := ValidateTransition(order.OrderID, order.PaymentState, models.StatePaid); err != nil {
		return nil, err
	}
	if err := setReference(order.OrderID, &order.PaymentID, cb.PaymentID, "payment"); err != nil {
		return nil, err
	}
	order.PaymentState = models.StatePaid
	out.Approved = true
	out.State = models.StatePaid
	out.signal(SignalMarkPaid)
	out.note("Payment approved (ID: %s, Auth Code: %s)", cb.PaymentID, cb.AuthCode)
	return out, nil
}

// reconcileAuthorization applies a signed authorization-result callback: the
// processor holds the funds and a later capture completes payment.
func reconcileAuthorization(ctx context.Context, m *Machine, order *models.Order, cb *Callback) (*Outcome, error) {
	out := &Outcome{
		Kind:        models.TxnAuthorization,
		GatewayRef:  cb.PaymentID,
		AuthCode:    cb.AuthCode,
		AmountMinor: cb.AmountMinor,
	}

	if !cb.Approved() {
		if err := ValidateTransition(order.OrderID, order.PaymentState, models.StateDeclined); err != nil {
			return nil, err
		}
		order.PaymentState = models.StateDeclined
		out.Approved = false
		out.State = models.StateDeclined
		out.signal(SignalMarkFailed)
		out.note("Authorization was declined by the processor (status %s)", cb.PaymentStatus)
		return out, nil
	}

	if err := ValidateTransition(order.OrderID, order.PaymentState, models.StateAuthorized); err != nil {
		return nil, err
	}
	if err := setReference(order.OrderID, &order.AuthorizationID, cb.PaymentID, "authorization"); err != nil {
		return nil, err
	}
	order.PaymentState = models.StateAuthorized
	order.Captured = false
	out.Approved = true
	out.State = models.StateAuthorized
	out.signal(SignalMarkProcessing)
	out.note("Authorization approved via callback (ID: %s) - capture required", cb.PaymentID)
	return out, nil
}

// HostedArgs builds the signed parameter set for the processor's hosted
// payment page, per the configured mode.
func (mode Mode) HostedArgs(cfg config.GatewayConfig, order *models.Order) map[string]string {
	operation := "create.payment"
	if mode.Timing == TimingAuthorize && mode.Integration == IntegrationEmbedded {
		operation = "create.token"
	}
	return map[string]string{
		"sc-key":       cfg.PublicKey,
		"amount":       strconv.FormatInt(order.TotalMinorUnits, 10),
		"currency":     order.Currency,
		"reference":    order.OrderID,
		"description":  fmt.Sprintf("Order #%s", order.OrderID),
		"operation":    operation,
		"redirect-url": cfg.CallbackURL,
	}
}

// PendingState is the state an order waits in after the shopper is handed to
// the hosted payment page.
func (mode Mode) PendingState() models.PaymentState {
	if mode.Timing == TimingAuthorize {
		return models.StateAuthorizationPending
	}
	return models.StateUnpaid
}
