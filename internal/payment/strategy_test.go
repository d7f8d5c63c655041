package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/payment"
)

func TestModeFromConfigValidCombinations(t *testing.T) {
	for _, tc := range []struct {
		txnMode, integration string
	}{
		{"purchase", "modal"},
		{"purchase", "embedded"},
		{"authorize", "modal"},
		{"authorize", "embedded"},
	} {
		cfg := testGatewayConfig()
		cfg.TxnMode = tc.txnMode
		cfg.Integration = tc.integration

		mode, err := payment.ModeFromConfig(cfg)
		require.NoError(t, err, "%s/%s", tc.txnMode, tc.integration)
		assert.Equal(t, payment.ChargeTiming(tc.txnMode), mode.Timing)
		assert.Equal(t, payment.Integration(tc.integration), mode.Integration)
	}
}

func TestModeFromConfigRejectsUnknownCombination(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.TxnMode = "subscribe"

	_, err := payment.ModeFromConfig(cfg)
	assert.Error(t, err, "an unknown mode is a startup error, not a runtime fallthrough")
}

func TestHostedArgs(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.CallbackURL = "https://shop.example.com/api/v1/payments/callback"
	order := &models.Order{OrderID: "order-55", TotalMinorUnits: 2500, Currency: "USD"}

	t.Run("purchase modes charge on the hosted page", func(t *testing.T) {
		mode := payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}
		args := mode.HostedArgs(cfg, order)

		assert.Equal(t, "pk_test", args["sc-key"])
		assert.Equal(t, "2500", args["amount"])
		assert.Equal(t, "USD", args["currency"])
		assert.Equal(t, "order-55", args["reference"])
		assert.Equal(t, "create.payment", args["operation"])
		assert.Equal(t, cfg.CallbackURL, args["redirect-url"])
	})

	t.Run("embedded authorize collects only a token", func(t *testing.T) {
		mode := payment.Mode{Timing: payment.TimingAuthorize, Integration: payment.IntegrationEmbedded}
		args := mode.HostedArgs(cfg, order)

		assert.Equal(t, "create.token", args["operation"])
	})

	t.Run("modal authorize still charges on the page", func(t *testing.T) {
		mode := payment.Mode{Timing: payment.TimingAuthorize, Integration: payment.IntegrationModal}
		args := mode.HostedArgs(cfg, order)

		assert.Equal(t, "create.payment", args["operation"])
	})
}

func TestPendingState(t *testing.T) {
	assert.Equal(t, models.StateUnpaid,
		payment.Mode{Timing: payment.TimingPurchase, Integration: payment.IntegrationModal}.PendingState())
	assert.Equal(t, models.StateAuthorizationPending,
		payment.Mode{Timing: payment.TimingAuthorize, Integration: payment.IntegrationModal}.PendingState())
	assert.Equal(t, models.StateAuthorizationPending,
		payment.Mode{Timing: payment.TimingAuthorize, Integration: payment.IntegrationEmbedded}.PendingState())
}
