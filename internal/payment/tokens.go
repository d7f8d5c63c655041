package payment

import "ms-payment-gateway/internal/gateway"

// TokenRef is a sealed reference to a payment method. A CardToken is
// single-use and consumed by exactly one charge attempt; a CustomerRef is
// durable and reusable for subscriptions, pre-orders and saved cards. The two
// must never be conflated: the remote API silently misbehaves if one is sent
// where the other is expected, so the distinction is enforced by type.
type TokenRef interface {
	isTokenRef()
}

type CardToken string

func (CardToken) isTokenRef() {}

type CustomerRef string

func (CustomerRef) isTokenRef() {}

// applyToken places the reference into the correct request field for its kind.
func applyToken(req *gateway.PaymentRequest, ref TokenRef) {
	switch v := ref.(type) {
	case CardToken:
		req.Token = string(v)
	case CustomerRef:
		req.Customer = string(v)
	}
}
