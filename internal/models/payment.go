package models

import (
	"time"
)

// TransactionKind identifies which gateway operation a log entry records.
type TransactionKind string

const (
	TxnPurchase      TransactionKind = "purchase"
	TxnAuthorization TransactionKind = "authorization"
	TxnCapture       TransactionKind = "capture"
	TxnVoid          TransactionKind = "void"
	TxnRefund        TransactionKind = "refund"
)

// Transaction is one row of the gateway interaction log. Every call that
// reaches the remote processor is recorded here, approved or not.
type Transaction struct {
	TransactionID string          `json:"transaction_id" bun:"transaction_id,pk"`
	OrderID       string          `json:"order_id" bun:"order_id"`
	Kind          TransactionKind `json:"kind" bun:"kind"`
	GatewayRef    string          `json:"gateway_ref,omitempty" bun:"gateway_ref,nullzero"`
	AmountMinor   int64           `json:"amount_minor" bun:"amount_minor"`
	Currency      string          `json:"currency" bun:"currency"`
	Status        string          `json:"status" bun:"status"`
	AuthCode      string          `json:"auth_code,omitempty" bun:"auth_code,nullzero"`
	Detail        string          `json:"detail,omitempty" bun:"detail,nullzero"`
	CreatedDate   time.Time       `json:"created_date" bun:"created_date"`
}

// PaymentEvent is published to Kafka and streamed over SSE whenever an
// order's payment state changes.
type PaymentEvent struct {
	Type        string       `json:"type"`
	OrderID     string       `json:"order_id"`
	State       PaymentState `json:"state"`
	GatewayRef  string       `json:"gateway_ref,omitempty"`
	AmountMinor int64        `json:"amount_minor,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

type RefundRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Reason      string `json:"reason"`
}

type CheckoutRequest struct {
	OrderID     string `json:"order_id"`
	CardToken   string `json:"card_token,omitempty"`
	CustomerRef string `json:"customer_ref,omitempty"`
	// SaveMethod asks the gateway to exchange the one-time card token for a
	// durable customer reference stored against the order.
	SaveMethod bool `json:"save_method,omitempty"`
}

// CheckoutResponse mirrors the legacy result shape: "success"/"fail" plus a
// redirect target. For hosted (modal/embedded) integrations Redirect points at
// the processor payment page and HostedArgs carries the signed page
// parameters.
type CheckoutResponse struct {
	Result     string            `json:"result"`
	Redirect   string            `json:"redirect,omitempty"`
	OrderState PaymentState      `json:"order_state"`
	HostedArgs map[string]string `json:"hosted_args,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
}

// CallbackResponse is always delivered with HTTP 200: the redirect target and
// order state carry the outcome, per the legacy hosted-payments contract.
type CallbackResponse struct {
	RedirectTo string       `json:"redirect_to"`
	OrderState PaymentState `json:"order_state"`
}
