package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/logger"
)

func testConfig(baseURL string) config.GatewayConfig {
	return config.GatewayConfig{
		BaseURL:    baseURL,
		PublicKey:  "pk_test",
		PrivateKey: "sk_test",
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(testConfig(server.URL), server.Client(), logger.NewLogger())
	require.NoError(t, err)
	return client, server
}

func TestNewHTTPClientRequiresKeys(t *testing.T) {
	_, err := NewHTTPClient(config.GatewayConfig{PublicKey: "pk"}, nil, logger.NewLogger())
	assert.Error(t, err)

	_, err = NewHTTPClient(config.GatewayConfig{PrivateKey: "sk"}, nil, logger.NewLogger())
	assert.Error(t, err)
}

func TestCreatePaymentSignsAndAuthenticatesRequest(t *testing.T) {
	var gotAuthUser, gotSignature string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthUser, _, _ = r.BasicAuth()
		gotSignature = r.Header.Get("Signature")

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		assert.Equal(t, Sign(raw, "sk_test"), gotSignature)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "pay_123",
			"paymentStatus": "APPROVED",
			"authCode":      "AB1234",
			"amount":        1999,
			"reference":     "order-1",
		})
	}))

	result, err := client.CreatePayment(context.Background(), PaymentRequest{
		AmountMinor: 1999,
		Currency:    "usd",
		Reference:   "order-1",
		Token:       "tok_abc",
	})
	require.NoError(t, err)

	assert.Equal(t, "pk_test", gotAuthUser)
	assert.NotEmpty(t, gotSignature)
	assert.True(t, result.Approved())
	assert.Equal(t, "pay_123", result.ID)
	assert.Equal(t, "AB1234", result.AuthCode)
	assert.Equal(t, int64(1999), result.AmountMinor)

	// Currency is normalized to upper case on the wire.
	assert.Equal(t, "USD", gotBody["currency"])
	assert.Equal(t, "tok_abc", gotBody["token"])
	assert.Equal(t, "order-1", gotBody["reference"])
}

func TestCreatePaymentRejectsAmountBelowFloorLocally(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	_, err := client.CreatePayment(context.Background(), PaymentRequest{
		AmountMinor: 40,
		Currency:    "USD",
		Reference:   "order-2",
		Token:       "tok_abc",
	})

	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, calls, "sub-minimum amount must never reach the processor")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.FieldErrors, 1)
	assert.Equal(t, "amount", ve.FieldErrors[0].Field)
	assert.Equal(t, "below_minimum", ve.FieldErrors[0].Code)
}

func TestCreatePaymentRejectsTokenCustomerConflict(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	_, err := client.CreatePayment(context.Background(), PaymentRequest{
		AmountMinor: 1999,
		Currency:    "USD",
		Reference:   "order-3",
		Token:       "tok_abc",
		Customer:    "cus_abc",
	})

	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, calls)
}

func TestErrorEnvelopeMapping(t *testing.T) {
	t.Run("field errors become ValidationError", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"validation","message":"bad card",
				"fieldErrors":[{"field":"card.number","code":"invalid","message":"card number is not valid"}]}}`))
		}))

		_, err := client.CreatePayment(context.Background(), PaymentRequest{
			AmountMinor: 1999, Currency: "USD", Reference: "order-4", Token: "tok",
		})

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "bad card", ve.Message)
		require.Len(t, ve.FieldErrors, 1)
		assert.Equal(t, "card.number", ve.FieldErrors[0].Field)
	})

	t.Run("coded error becomes APIError", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":"PAYMENT_ALREADY_CAPTURED","message":"already captured"}}`))
		}))

		_, err := client.Capture(context.Background(), CaptureRequest{
			AuthorizationID: "auth_1", AmountMinor: 1999, Currency: "USD", Reference: "order-5",
		})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "PAYMENT_ALREADY_CAPTURED", apiErr.Code)
		assert.Equal(t, "PAYMENT_ALREADY_CAPTURED", ErrorCode(err))
	})

	t.Run("unparseable body becomes APIError with raw message", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		}))

		_, err := client.CreatePayment(context.Background(), PaymentRequest{
			AmountMinor: 1999, Currency: "USD", Reference: "order-6", Token: "tok",
		})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "unknown", apiErr.Code)
		assert.Equal(t, "upstream exploded", apiErr.Message)
	})
}

func TestTransportErrorOnConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewHTTPClient(testConfig(server.URL), nil, logger.NewLogger())
	require.NoError(t, err)
	server.Close()

	_, err = client.CreatePayment(context.Background(), PaymentRequest{
		AmountMinor: 1999, Currency: "USD", Reference: "order-7", Token: "tok",
	})

	assert.True(t, IsTransport(err))
}

func TestCaptureChargesAgainstAuthorization(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "pay_cap_1",
			"paymentStatus": "APPROVED",
			"captured":      true,
		})
	}))

	result, err := client.Capture(context.Background(), CaptureRequest{
		AuthorizationID: "auth_99",
		AmountMinor:     1999,
		Currency:        "USD",
		Reference:       "order-8",
	})
	require.NoError(t, err)

	// The remote models capture as a payment created against the
	// authorization id.
	assert.Equal(t, "/payment", gotPath)
	assert.Equal(t, "auth_99", gotBody["authorization"])
	assert.True(t, result.Captured)
}

func TestVoidAuthorizationDeletesRemoteHold(t *testing.T) {
	var gotMethod, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	err := client.VoidAuthorization(context.Background(), "auth_42")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/authorization/auth_42", gotPath)

	assert.True(t, IsValidation(client.VoidAuthorization(context.Background(), "")))
}

func TestCreateCustomerExchangesToken(t *testing.T) {
	var gotBody map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customer", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "cus_77"})
	}))

	customer, err := client.CreateCustomer(context.Background(), CustomerRequest{
		Token: "tok_once", Email: "shopper@example.com", Reference: "order-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_77", customer.ID)
	assert.Equal(t, "tok_once", gotBody["token"])

	_, err = client.CreateCustomer(context.Background(), CustomerRequest{})
	assert.True(t, IsValidation(err))
}
