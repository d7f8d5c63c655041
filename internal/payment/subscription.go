package payment

import (
	"context"
	"fmt"

	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/models"
)

// SubscriptionExtension decorates the base machine with recurring-charge and
// deferred-charge flows. It exchanges the single-use card token captured at
// checkout for a durable customer reference, then reuses that reference for
// every later scheduled charge.
type SubscriptionExtension struct {
	machine *Machine
	gw      gateway.Client
	log     *logger.Logger
}

func NewSubscriptionExtension(machine *Machine, gw gateway.Client, log *logger.Logger) *SubscriptionExtension {
	return &SubscriptionExtension{machine: machine, gw: gw, log: log}
}

// ProcessInitialPayment runs the first charge of a subscription or pre-order
// order. The card token is consumed once, by the customer exchange; all
// charging from then on uses the customer reference.
func (s *SubscriptionExtension) ProcessInitialPayment(ctx context.Context, order *models.Order, card CardToken) (*Outcome, error) {
	ref, err := s.EnsureCustomerRef(ctx, order, card)
	if err != nil {
		return nil, err
	}

	// Zero-value initial orders (free trials, pre-orders charged on release)
	// are completed without any charge.
	if order.TotalMinorUnits == 0 {
		return s.markPaidWithoutCharge(order, "Initial order total is zero - no payment required")
	}

	return s.machine.BeginPurchase(ctx, order, ref)
}

// EnsureCustomerRef returns the order's stored customer reference, creating
// one from the card token first if needed. The token is discarded from use
// once the exchange succeeds.
func (s *SubscriptionExtension) EnsureCustomerRef(ctx context.Context, order *models.Order, card CardToken) (CustomerRef, error) {
	if order.CustomerID != "" {
		return CustomerRef(order.CustomerID), nil
	}
	if card == "" {
		return "", ErrMissingCustomerRef
	}

	customer, err := s.gw.CreateCustomer(ctx, gateway.CustomerRequest{
		Token:     string(card),
		Email:     order.BillingEmail,
		Name:      order.BillingName,
		Reference: order.OrderID,
	})
	if err != nil {
		return "", err
	}
	if err := setReference(order.OrderID, &order.CustomerID, customer.ID, "customer"); err != nil {
		return "", err
	}
	s.log.LogPayment("SUBSCRIPTION", order.OrderID,
		fmt.Sprintf("card token exchanged for customer reference %s", customer.ID))
	return CustomerRef(customer.ID), nil
}

// ScheduledCharge runs a recurring renewal charge against the stored customer
// reference. A zero-amount renewal short-circuits straight to paid without
// touching the gateway.
func (s *SubscriptionExtension) ScheduledCharge(ctx context.Context, order *models.Order) (*Outcome, error) {
	if order.TotalMinorUnits == 0 {
		return s.markPaidWithoutCharge(order, "Renewal total is zero - no charge required")
	}
	if order.CustomerID == "" {
		return nil, ErrMissingCustomerRef
	}
	return s.machine.BeginPurchase(ctx, order, CustomerRef(order.CustomerID))
}

// ReleasePreOrder charges a deferred pre-order when the external scheduler
// releases it. Same customer-reference path as a renewal.
func (s *SubscriptionExtension) ReleasePreOrder(ctx context.Context, order *models.Order) (*Outcome, error) {
	return s.ScheduledCharge(ctx, order)
}

func (s *SubscriptionExtension) markPaidWithoutCharge(order *models.Order, reason string) (*Outcome, error) {
	if err := ValidateTransition(order.OrderID, order.PaymentState, models.StatePaid); err != nil {
		return nil, err
	}
	order.PaymentState = models.StatePaid
	out := &Outcome{
		Approved: true,
		State:    models.StatePaid,
		Kind:     models.TxnPurchase,
	}
	out.signal(SignalMarkPaid)
	out.note("%s", reason)
	s.log.LogPayment("SUBSCRIPTION", order.OrderID, "zero-amount charge marked paid without gateway call")
	return out, nil
}
