// Package signature validates the authenticity of inbound gateway callbacks
// using the processor's shared-secret digest scheme.
package signature

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingField means a required signed field was absent. Verification
	// fails closed: no partial digests.
	ErrMissingField = errors.New("callback signature: required field missing")

	// ErrMismatch means the recomputed digest does not equal the supplied one.
	ErrMismatch = errors.New("callback signature: digest mismatch")
)

// Fields is the ordered signed field set of a hosted-payment callback. The
// digest covers exactly these five values, in this order, with no delimiters.
type Fields struct {
	Amount        string
	Reference     string
	PaymentID     string
	PaymentDate   string
	PaymentStatus string

	// Signature is the digest supplied by the caller.
	Signature string
}

// Compute returns the expected digest: uppercase hex MD5 of
// amount + reference + paymentId + paymentDate + paymentStatus + secret.
func Compute(f Fields, secret string) string {
	payload := f.Amount + f.Reference + f.PaymentID + f.PaymentDate + f.PaymentStatus + secret
	sum := md5.Sum([]byte(payload))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify recomputes the digest and compares it against the supplied signature
// in constant time. A failed verification must never advance order state.
func Verify(f Fields, secret string) error {
	for name, v := range map[string]string{
		"amount":        f.Amount,
		"reference":     f.Reference,
		"paymentId":     f.PaymentID,
		"paymentDate":   f.PaymentDate,
		"paymentStatus": f.PaymentStatus,
		"signature":     f.Signature,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}

	expected := Compute(f, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(f.Signature)) != 1 {
		return ErrMismatch
	}
	return nil
}
