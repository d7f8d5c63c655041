package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is a single field-level problem reported either locally before
// dispatch or by the remote processor's request validation.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %q (%s)", e.Field, e.Message, e.Code)
}

// ValidationError means the request itself was malformed. The caller may retry
// with corrected input; no charge was created and no state transition follows.
type ValidationError struct {
	Message     string
	FieldErrors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return "gateway validation: " + e.Message
	}
	parts := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		parts = append(parts, fe.String())
	}
	return "gateway validation: " + strings.Join(parts, "; ")
}

// DeclinedError is a legitimate business outcome (insufficient funds and the
// like), not a system fault.
type DeclinedError struct {
	Reference string
	Reason    string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined for %s: %s", e.Reference, e.Reason)
}

// TransportError covers connectivity and timeout failures. No state change was
// made; the whole operation can be retried with the same idempotency reference.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a remote rejection that is neither field validation nor a
// decline, for example an invalid-state or duplicate-reference answer. Code
// carries the processor's own error code string.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsDeclined(err error) bool {
	var de *DeclinedError
	return errors.As(err, &de)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ErrorCode extracts the remote error code from an APIError, or "".
func ErrorCode(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
