package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/payment"
)

func newTestSubscriptions(gw gateway.Client) *payment.SubscriptionExtension {
	return payment.NewSubscriptionExtension(newTestMachine(gw), gw, logger.NewLogger())
}

func TestProcessInitialPaymentExchangesTokenThenCharges(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(1999)
	order.BillingEmail = "shopper@example.com"

	gw.On("CreateCustomer", mock.Anything, gateway.CustomerRequest{
		Token: "tok_first", Email: "shopper@example.com", Reference: "order-1",
	}).Return(&gateway.CustomerResult{ID: "cus_1"}, nil).Once()

	// The charge must use the customer reference, never the consumed token.
	gw.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req gateway.PaymentRequest) bool {
		return req.Customer == "cus_1" && req.Token == ""
	})).Return(&gateway.Result{ID: "pay_1", Status: gateway.StatusApproved}, nil).Once()

	out, err := subs.ProcessInitialPayment(context.Background(), order, payment.CardToken("tok_first"))
	require.NoError(t, err)

	assert.True(t, out.Approved)
	assert.Equal(t, "cus_1", order.CustomerID)
	assert.Equal(t, models.StatePaid, order.PaymentState)
	gw.AssertExpectations(t)
}

func TestProcessInitialPaymentZeroTotalSkipsGatewayCharge(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(0)

	// The token is still exchanged so later renewals can charge.
	gw.On("CreateCustomer", mock.Anything, mock.Anything).
		Return(&gateway.CustomerResult{ID: "cus_2"}, nil).Once()

	out, err := subs.ProcessInitialPayment(context.Background(), order, payment.CardToken("tok_trial"))
	require.NoError(t, err)

	assert.True(t, out.Approved)
	assert.Equal(t, models.StatePaid, order.PaymentState)
	assert.Equal(t, "cus_2", order.CustomerID)
	gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestEnsureCustomerRefReusesStoredReference(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(1999)
	order.CustomerID = "cus_existing"

	ref, err := subs.EnsureCustomerRef(context.Background(), order, "")
	require.NoError(t, err)

	assert.Equal(t, payment.CustomerRef("cus_existing"), ref)
	gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
}

func TestEnsureCustomerRefWithoutTokenOrReference(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(1999)

	_, err := subs.EnsureCustomerRef(context.Background(), order, "")
	assert.ErrorIs(t, err, payment.ErrMissingCustomerRef)
}

func TestScheduledChargeUsesCustomerReference(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(999)
	order.CustomerID = "cus_renewal"

	gw.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req gateway.PaymentRequest) bool {
		return req.Customer == "cus_renewal" && req.AmountMinor == 999
	})).Return(&gateway.Result{ID: "pay_renewal", Status: gateway.StatusApproved}, nil)

	out, err := subs.ScheduledCharge(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, out.Approved)
	assert.Equal(t, models.StatePaid, order.PaymentState)
}

func TestScheduledChargeWithoutCustomerReferenceFails(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(999)

	_, err := subs.ScheduledCharge(context.Background(), order)
	assert.ErrorIs(t, err, payment.ErrMissingCustomerRef)
	gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestScheduledChargeZeroAmountMarksPaidDirectly(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(0)

	out, err := subs.ScheduledCharge(context.Background(), order)
	require.NoError(t, err)

	assert.True(t, out.Approved)
	assert.Equal(t, models.StatePaid, order.PaymentState)
	assert.True(t, hasSignal(out, payment.SignalMarkPaid))
	gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestScheduledChargeDeclineFollowsNormalDeclinePath(t *testing.T) {
	gw := new(MockGateway)
	subs := newTestSubscriptions(gw)
	order := newUnpaidOrder(999)
	order.CustomerID = "cus_renewal"

	gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(&gateway.Result{ID: "pay_dec", Status: gateway.StatusDeclined}, nil)

	out, err := subs.ScheduledCharge(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, out.Approved)
	assert.Equal(t, models.StateDeclined, order.PaymentState)
}
