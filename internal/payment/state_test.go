package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/payment"
)

func TestLifecycleTransitions(t *testing.T) {
	allowed := []struct {
		from, to models.PaymentState
	}{
		{models.StateUnpaid, models.StatePaid},
		{models.StateUnpaid, models.StateAuthorized},
		{models.StateUnpaid, models.StateAuthorizationPending},
		{models.StateUnpaid, models.StateDeclined},
		{models.StateAuthorizationPending, models.StateAuthorized},
		{models.StateAuthorizationPending, models.StateFailed},
		{models.StateAuthorized, models.StateCaptured},
		{models.StateAuthorized, models.StateVoided},
		{models.StateCaptured, models.StateRefunded},
		{models.StateCaptured, models.StatePartiallyRefunded},
		{models.StatePaid, models.StatePartiallyRefunded},
		{models.StatePartiallyRefunded, models.StatePartiallyRefunded},
		{models.StatePartiallyRefunded, models.StateRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, payment.CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
		assert.NoError(t, payment.ValidateTransition("o-1", tc.from, tc.to))
	}

	denied := []struct {
		from, to models.PaymentState
	}{
		{models.StatePaid, models.StatePaid},
		{models.StatePaid, models.StateAuthorized},
		{models.StateVoided, models.StateCaptured},
		{models.StateVoided, models.StateAuthorized},
		{models.StateRefunded, models.StatePaid},
		{models.StateDeclined, models.StatePaid},
		{models.StateFailed, models.StatePaid},
		{models.StateCaptured, models.StateCaptured},
		{models.StateAuthorized, models.StatePaid},
		{models.StateUnpaid, models.StateCaptured},
	}
	for _, tc := range denied {
		assert.False(t, payment.CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
		assert.True(t, payment.IsInvalidState(payment.ValidateTransition("o-1", tc.from, tc.to)))
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []models.PaymentState{
		models.StatePaid, models.StateCaptured, models.StateDeclined,
		models.StateFailed, models.StateRefunded, models.StateVoided,
	} {
		assert.True(t, s.Terminal(), "%s", s)
	}
	for _, s := range []models.PaymentState{
		models.StateUnpaid, models.StateAuthorizationPending,
		models.StateAuthorized, models.StatePartiallyRefunded,
	} {
		assert.False(t, s.Terminal(), "%s", s)
	}
}
