package payment_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/payment"
	"ms-payment-gateway/internal/signature"
)

// signedCallbackValues builds a processor callback with a valid signature for
// the test machine's private key.
func signedCallbackValues(reference, amount, paymentID, status string) url.Values {
	sig := signature.Compute(signature.Fields{
		Amount:        amount,
		Reference:     reference,
		PaymentID:     paymentID,
		PaymentDate:   "1700000000000",
		PaymentStatus: status,
	}, "sk_test")

	return url.Values{
		"reference":     {reference},
		"amount":        {amount},
		"paymentId":     {paymentID},
		"paymentDate":   {"1700000000000"},
		"paymentStatus": {status},
		"authCode":      {"AB12"},
		"signature":     {sig},
	}
}

func mustParse(t *testing.T, values url.Values) *payment.Callback {
	t.Helper()
	cb, err := payment.ParseCallback(values)
	require.NoError(t, err)
	return cb
}

func TestParseCallbackRejectsGarbage(t *testing.T) {
	cases := map[string]url.Values{
		"empty":              {},
		"missing reference":  {"amount": {"1999"}, "paymentId": {"p"}},
		"missing amount":     {"reference": {"o-1"}, "paymentId": {"p"}},
		"non-numeric amount": {"reference": {"o-1"}, "amount": {"19.99"}, "paymentId": {"p"}},
		"negative amount":    {"reference": {"o-1"}, "amount": {"-5"}, "paymentId": {"p"}},
		"no payload":         {"reference": {"o-1"}, "amount": {"1999"}},
	}

	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := payment.ParseCallback(values)
			assert.ErrorIs(t, err, payment.ErrUnparseableCallback)
		})
	}
}

func TestParseCallbackClassifiesShape(t *testing.T) {
	cb := mustParse(t, signedCallbackValues("order-1", "1999", "pay_1", "APPROVED"))
	assert.Equal(t, payment.CallbackPayment, cb.Kind)
	assert.Equal(t, "1999", cb.RawAmount)
	assert.True(t, cb.Approved())

	cb = mustParse(t, url.Values{
		"reference": {"order-1"}, "amount": {"1999"}, "cardToken": {"tok_cb"},
	})
	assert.Equal(t, payment.CallbackToken, cb.Kind)
	assert.Equal(t, "tok_cb", cb.CardToken)
}

func TestReconcilePurchaseCallbackApproved(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}
	order := newUnpaidOrder(1999)

	cb := mustParse(t, signedCallbackValues("order-1", "1999", "pay_cb", "APPROVED"))

	out, err := m.ReconcileCallback(context.Background(), mode, order, cb)
	require.NoError(t, err)

	assert.True(t, out.Approved)
	assert.Equal(t, models.StatePaid, order.PaymentState)
	assert.Equal(t, "pay_cb", order.PaymentID)
	assert.True(t, hasSignal(out, payment.SignalMarkPaid))
	// The processor already moved the funds; no gateway call happens here.
	gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestReconcilePurchaseCallbackDeclined(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationEmbedded}
	order := newUnpaidOrder(1999)

	cb := mustParse(t, signedCallbackValues("order-1", "1999", "pay_cb", "DECLINED"))

	out, err := m.ReconcileCallback(context.Background(), mode, order, cb)
	require.NoError(t, err)

	assert.False(t, out.Approved)
	assert.Equal(t, models.StateFailed, order.PaymentState)
	assert.Empty(t, order.PaymentID)
	gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestReconcileRejectsBadSignatureBeforeAnyStateChange(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}
	order := newUnpaidOrder(1999)

	values := signedCallbackValues("order-1", "1999", "pay_cb", "APPROVED")
	values.Set("signature", "0000000000000000000000000000000000000000")
	cb := mustParse(t, values)

	_, err := m.ReconcileCallback(context.Background(), mode, order, cb)

	assert.ErrorIs(t, err, signature.ErrMismatch)
	assert.Equal(t, models.StateUnpaid, order.PaymentState)
	assert.Empty(t, order.PaymentID)
}

func TestReconcileRejectsAmountMismatch(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}
	order := newUnpaidOrder(2999)

	cb := mustParse(t, signedCallbackValues("order-1", "1999", "pay_cb", "APPROVED"))

	_, err := m.ReconcileCallback(context.Background(), mode, order, cb)

	var mismatch *payment.AmountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, models.StateUnpaid, order.PaymentState)
}

func TestReconcileRejectsWrongCallbackShapeForMode(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	order := newUnpaidOrder(1999)

	// A token-shaped callback cannot settle a purchase/modal installation.
	cb := mustParse(t, url.Values{
		"reference": {"order-1"}, "amount": {"1999"}, "cardToken": {"tok_cb"},
	})
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}

	_, err := m.ReconcileCallback(context.Background(), mode, order, cb)
	assert.ErrorIs(t, err, payment.ErrUnparseableCallback)
	assert.Equal(t, models.StateUnpaid, order.PaymentState)
}

func TestReconcileAuthorizationCallback(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingAuthorize, Integration: payment.IntegrationModal}
	order := newUnpaidOrder(1999)
	order.PaymentState = models.StateAuthorizationPending

	cb := mustParse(t, signedCallbackValues("order-1", "1999", "auth_cb", "APPROVED"))

	out, err := m.ReconcileCallback(context.Background(), mode, order, cb)
	require.NoError(t, err)

	assert.True(t, out.Approved)
	assert.Equal(t, models.StateAuthorized, order.PaymentState)
	assert.Equal(t, "auth_cb", order.AuthorizationID)
	assert.False(t, order.Captured)
	assert.True(t, hasSignal(out, payment.SignalMarkProcessing))
}

func TestReconcileTokenCallbackAuthorizesServerSide(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingAuthorize, Integration: payment.IntegrationEmbedded}
	order := newUnpaidOrder(1999)
	order.PaymentState = models.StateAuthorizationPending

	gw.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(req gateway.PaymentRequest) bool {
		return req.Token == "tok_iframe" && req.AmountMinor == 1999
	})).Return(&gateway.Result{ID: "auth_srv", Status: gateway.StatusApproved}, nil)

	cb := mustParse(t, url.Values{
		"reference": {"order-1"}, "amount": {"1999"}, "cardToken": {"tok_iframe"},
	})

	out, err := m.ReconcileCallback(context.Background(), mode, order, cb)
	require.NoError(t, err)

	assert.True(t, out.Approved)
	assert.Equal(t, models.StateAuthorized, order.PaymentState)
	assert.Equal(t, "auth_srv", order.AuthorizationID)
	gw.AssertExpectations(t)
}

func TestReconcileTerminalReplayIsIdempotentNoOp(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}
	order := newUnpaidOrder(1999)
	order.PaymentState = models.StatePaid
	order.PaymentID = "pay_cb"

	cb := mustParse(t, signedCallbackValues("order-1", "1999", "pay_cb", "APPROVED"))

	out, err := m.ReconcileCallback(context.Background(), mode, order, cb)
	require.NoError(t, err)

	assert.True(t, out.Approved)
	assert.Equal(t, models.StatePaid, order.PaymentState)
	assert.Empty(t, out.Signals, "a matching replay applies nothing")
}

func TestReconcileTerminalConflictFlagsManualReview(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}
	order := newUnpaidOrder(1999)
	order.PaymentState = models.StateDeclined

	// Approved callback for an order we recorded as declined.
	cb := mustParse(t, signedCallbackValues("order-1", "1999", "pay_late", "APPROVED"))

	out, err := m.ReconcileCallback(context.Background(), mode, order, cb)

	assert.ErrorIs(t, err, payment.ErrCallbackConflict)
	require.NotNil(t, out, "conflict outcomes still carry the review signals")
	assert.True(t, hasSignal(out, payment.SignalManualReview))
	assert.Equal(t, models.StateDeclined, order.PaymentState, "terminal state is never overwritten")
}

func TestReconcileTerminalDeclinedReplayMatches(t *testing.T) {
	gw := new(MockGateway)
	m := newTestMachine(gw)
	mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}
	order := newUnpaidOrder(1999)
	order.PaymentState = models.StateDeclined

	cb := mustParse(t, signedCallbackValues("order-1", "1999", "pay_cb", "DECLINED"))

	out, err := m.ReconcileCallback(context.Background(), mode, order, cb)
	require.NoError(t, err)
	assert.False(t, out.Approved)
	assert.Empty(t, out.Signals)
	gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}
