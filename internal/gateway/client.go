package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/logger"
)

// MinimumAmountMinor is the processor's own floor for a charge, in minor
// currency units. Amounts below it are rejected locally before dispatch.
const MinimumAmountMinor = 50

type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
)

type CardDetails struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
	CVC      string `json:"cvc"`
	Name     string `json:"name,omitempty"`
}

type TokenResult struct {
	Token string `json:"id"`
	Used  bool   `json:"used"`
}

// PaymentRequest describes a purchase or an authorization. Exactly one of
// Token and Customer must be set; Reference is the order id and doubles as the
// idempotency key at the remote.
type PaymentRequest struct {
	AmountMinor int64
	Currency    string
	Reference   string
	Description string
	Token       string
	Customer    string
}

type CaptureRequest struct {
	AuthorizationID string
	AmountMinor     int64
	Currency        string
	Reference       string
}

type RefundRequest struct {
	PaymentID   string
	AmountMinor int64
	Reason      string
	Reference   string
}

type CustomerRequest struct {
	Token     string
	Email     string
	Name      string
	Reference string
}

type CustomerResult struct {
	ID string `json:"id"`
}

// Result is the processor's answer to a charge-shaped call. It is untrusted
// input: amount and reference are echoed back so the caller can cross-check
// them against the order before mutating anything.
type Result struct {
	ID            string `json:"id"`
	Status        Status `json:"paymentStatus"`
	AuthCode      string `json:"authCode,omitempty"`
	Captured      bool   `json:"captured"`
	AmountMinor   int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	DeclineReason string `json:"declineReason,omitempty"`
}

func (r *Result) Approved() bool { return r.Status == StatusApproved }

// Client is the typed surface the payment core talks to.
type Client interface {
	CreateCardToken(ctx context.Context, card CardDetails) (*TokenResult, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error)
	CreateAuthorization(ctx context.Context, req PaymentRequest) (*Result, error)
	Capture(ctx context.Context, req CaptureRequest) (*Result, error)
	VoidAuthorization(ctx context.Context, authorizationID string) error
	CreateRefund(ctx context.Context, req RefundRequest) (*Result, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (*CustomerResult, error)
}

// HTTPClient issues signed calls against the processor's REST API.
type HTTPClient struct {
	cfg    config.GatewayConfig
	client *http.Client
	log    *logger.Logger
}

func NewHTTPClient(cfg config.GatewayConfig, httpClient *http.Client, log *logger.Logger) (*HTTPClient, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("gateway keys are not configured")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Sandbox {
		log.Warn("GATEWAY", "Gateway client running in sandbox mode")
	}
	return &HTTPClient{cfg: cfg, client: httpClient, log: log}, nil
}

func (c *HTTPClient) CreateCardToken(ctx context.Context, card CardDetails) (*TokenResult, error) {
	body := map[string]interface{}{
		"key":  c.cfg.PublicKey,
		"card": card,
	}
	var out TokenResult
	if err := c.do(ctx, http.MethodPost, "/payment/cardToken", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	if err := c.validateCharge(req); err != nil {
		return nil, err
	}
	c.log.LogGateway("CREATE_PAYMENT", req.Reference, fmt.Sprintf("amount=%d %s", req.AmountMinor, req.Currency))
	return c.charge(ctx, "/payment", req, "")
}

func (c *HTTPClient) CreateAuthorization(ctx context.Context, req PaymentRequest) (*Result, error) {
	if err := c.validateCharge(req); err != nil {
		return nil, err
	}
	c.log.LogGateway("CREATE_AUTHORIZATION", req.Reference, fmt.Sprintf("amount=%d %s", req.AmountMinor, req.Currency))
	return c.charge(ctx, "/authorization", req, "")
}

// Capture converts an authorization hold into a funds transfer. The remote
// models it as a payment created against the authorization id.
func (c *HTTPClient) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	if req.AuthorizationID == "" {
		return nil, &ValidationError{FieldErrors: []FieldError{{Field: "authorization", Code: "missing", Message: "authorization id is required"}}}
	}
	if req.AmountMinor < MinimumAmountMinor {
		return nil, amountFloorError(req.AmountMinor)
	}
	c.log.LogGateway("CAPTURE", req.Reference, fmt.Sprintf("authorization=%s amount=%d", req.AuthorizationID, req.AmountMinor))
	return c.charge(ctx, "/payment", PaymentRequest{
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Reference:   req.Reference,
	}, req.AuthorizationID)
}

func (c *HTTPClient) VoidAuthorization(ctx context.Context, authorizationID string) error {
	if authorizationID == "" {
		return &ValidationError{FieldErrors: []FieldError{{Field: "authorization", Code: "missing", Message: "authorization id is required"}}}
	}
	c.log.LogGateway("VOID", authorizationID, "reversing authorization")
	return c.do(ctx, http.MethodDelete, "/authorization/"+authorizationID, nil, nil)
}

func (c *HTTPClient) CreateRefund(ctx context.Context, req RefundRequest) (*Result, error) {
	if req.PaymentID == "" {
		return nil, &ValidationError{FieldErrors: []FieldError{{Field: "payment", Code: "missing", Message: "payment id is required"}}}
	}
	if req.AmountMinor <= 0 {
		return nil, &ValidationError{FieldErrors: []FieldError{{Field: "amount", Code: "invalid", Message: "refund amount must be positive"}}}
	}
	c.log.LogGateway("REFUND", req.Reference, fmt.Sprintf("payment=%s amount=%d", req.PaymentID, req.AmountMinor))
	body := map[string]interface{}{
		"amount":    req.AmountMinor,
		"payment":   req.PaymentID,
		"reason":    req.Reason,
		"reference": req.Reference,
	}
	var out Result
	if err := c.do(ctx, http.MethodPost, "/refund", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateCustomer(ctx context.Context, req CustomerRequest) (*CustomerResult, error) {
	if req.Token == "" {
		return nil, &ValidationError{FieldErrors: []FieldError{{Field: "token", Code: "missing", Message: "card token is required"}}}
	}
	c.log.LogGateway("CREATE_CUSTOMER", req.Reference, "exchanging card token for customer reference")
	body := map[string]interface{}{
		"token":     req.Token,
		"email":     req.Email,
		"name":      req.Name,
		"reference": req.Reference,
	}
	var out CustomerResult
	if err := c.do(ctx, http.MethodPost, "/customer", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) validateCharge(req PaymentRequest) error {
	var fields []FieldError
	if req.AmountMinor < MinimumAmountMinor {
		return amountFloorError(req.AmountMinor)
	}
	if req.Token == "" && req.Customer == "" {
		fields = append(fields, FieldError{Field: "token", Code: "missing", Message: "a card token or customer reference is required"})
	}
	if req.Token != "" && req.Customer != "" {
		fields = append(fields, FieldError{Field: "token", Code: "conflict", Message: "token and customer reference are mutually exclusive"})
	}
	if req.Reference == "" {
		fields = append(fields, FieldError{Field: "reference", Code: "missing", Message: "an order reference is required"})
	}
	if req.Currency == "" {
		fields = append(fields, FieldError{Field: "currency", Code: "missing", Message: "currency is required"})
	}
	if len(fields) > 0 {
		return &ValidationError{FieldErrors: fields}
	}
	return nil
}

func amountFloorError(amount int64) error {
	return &ValidationError{FieldErrors: []FieldError{{
		Field:   "amount",
		Code:    "below_minimum",
		Message: fmt.Sprintf("minimum allowed amount is %d minor units, got %d", MinimumAmountMinor, amount),
	}}}
}

func (c *HTTPClient) charge(ctx context.Context, path string, req PaymentRequest, authorizationID string) (*Result, error) {
	body := map[string]interface{}{
		"amount":      req.AmountMinor,
		"currency":    strings.ToUpper(req.Currency),
		"reference":   req.Reference,
		"description": req.Description,
	}
	if req.Token != "" {
		body["token"] = req.Token
	}
	if req.Customer != "" {
		body["customer"] = req.Customer
	}
	if authorizationID != "" {
		body["authorization"] = authorizationID
	}
	var out Result
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// remoteError is the processor's error envelope.
type remoteError struct {
	Error struct {
		Code        string       `json:"code"`
		Message     string       `json:"message"`
		FieldErrors []FieldError `json:"fieldErrors"`
	} `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.PublicKey, "")
	req.Header.Set("Signature", Sign(payload, c.cfg.PrivateKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var remote remoteError
		if jsonErr := json.Unmarshal(raw, &remote); jsonErr == nil && remote.Error.Code != "" {
			if len(remote.Error.FieldErrors) > 0 {
				return &ValidationError{Message: remote.Error.Message, FieldErrors: remote.Error.FieldErrors}
			}
			return &APIError{StatusCode: resp.StatusCode, Code: remote.Error.Code, Message: remote.Error.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Code: "unknown", Message: strings.TrimSpace(string(raw))}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Sign computes the request signature: uppercase hex MD5 over the raw body
// followed by the private key, matching the processor's callback formula.
func Sign(payload []byte, privateKey string) string {
	sum := md5.Sum(append(append([]byte{}, payload...), []byte(privateKey)...))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
