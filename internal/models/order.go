package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PaymentState is the lifecycle state of an order's payment.
type PaymentState string

const (
	StateUnpaid               PaymentState = "unpaid"
	StateAuthorizationPending PaymentState = "authorization_pending"
	StateAuthorized           PaymentState = "authorized"
	StateCaptured             PaymentState = "captured"
	StatePaid                 PaymentState = "paid"
	StateDeclined             PaymentState = "declined"
	StateFailed               PaymentState = "failed"
	StateRefunded             PaymentState = "refunded"
	StatePartiallyRefunded    PaymentState = "partially_refunded"
	StateVoided               PaymentState = "voided"
)

// Terminal reports whether no further gateway-driven transition is expected
// from this state.
func (s PaymentState) Terminal() bool {
	switch s {
	case StatePaid, StateCaptured, StateDeclined, StateFailed, StateRefunded, StateVoided:
		return true
	}
	return false
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID         string       `bun:"order_id,pk" json:"order_id"`
	TotalMinorUnits int64        `bun:"total_minor_units" json:"total_minor_units"`
	Currency        string       `bun:"currency" json:"currency"`
	PaymentState    PaymentState `bun:"payment_state" json:"payment_state"`

	// Captured tracks whether funds were physically taken, which is distinct
	// from being authorized.
	Captured           bool  `bun:"captured" json:"captured"`
	RefundedMinorUnits int64 `bun:"refunded_minor_units" json:"refunded_minor_units"`

	// Gateway references. Each is set at most once over the order's lifetime.
	PaymentID       string `bun:"gateway_payment_id,nullzero" json:"payment_id,omitempty"`
	AuthorizationID string `bun:"gateway_authorization_id,nullzero" json:"authorization_id,omitempty"`
	CaptureID       string `bun:"gateway_capture_id,nullzero" json:"capture_id,omitempty"`
	CustomerID      string `bun:"gateway_customer_id,nullzero" json:"customer_id,omitempty"`

	BillingEmail string `bun:"billing_email,nullzero" json:"billing_email,omitempty"`
	BillingName  string `bun:"billing_name,nullzero" json:"billing_name,omitempty"`

	ReturnURL string `bun:"return_url,nullzero" json:"return_url,omitempty"`
	CartURL   string `bun:"cart_url,nullzero" json:"cart_url,omitempty"`

	CreatedAt time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// RemainingRefundable is how much of the order total can still be refunded.
func (o *Order) RemainingRefundable() int64 {
	return o.TotalMinorUnits - o.RefundedMinorUnits
}

type OrderNote struct {
	bun.BaseModel `bun:"table:order_notes"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	OrderID   string    `bun:"order_id" json:"order_id"`
	Note      string    `bun:"note" json:"note"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

type OrderRequest struct {
	OrderID         string `json:"order_id"`
	TotalMinorUnits int64  `json:"total_minor_units"`
	Currency        string `json:"currency"`
	BillingEmail    string `json:"billing_email,omitempty"`
	BillingName     string `json:"billing_name,omitempty"`
	ReturnURL       string `json:"return_url,omitempty"`
	CartURL         string `json:"cart_url,omitempty"`
}
