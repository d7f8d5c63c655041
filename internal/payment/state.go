package payment

import (
	"ms-payment-gateway/internal/models"
)

// allowedTransitions is the payment lifecycle graph. The key is the current
// state, the value the set of valid target states. Anything not listed is an
// invalid transition.
var allowedTransitions = map[models.PaymentState][]models.PaymentState{
	models.StateUnpaid: {
		models.StateAuthorizationPending,
		models.StateAuthorized,
		models.StatePaid,
		models.StateDeclined,
		models.StateFailed,
	},
	models.StateAuthorizationPending: {
		models.StateAuthorized,
		models.StateDeclined,
		models.StateFailed,
	},
	models.StateAuthorized: {
		models.StateCaptured,
		models.StateVoided,
		models.StateFailed,
	},
	models.StateCaptured: {
		models.StatePartiallyRefunded,
		models.StateRefunded,
	},
	models.StatePaid: {
		models.StatePartiallyRefunded,
		models.StateRefunded,
	},
	models.StatePartiallyRefunded: {
		models.StatePartiallyRefunded,
		models.StateRefunded,
	},
	// Terminal states
	models.StateDeclined: {},
	models.StateFailed:   {},
	models.StateRefunded: {},
	models.StateVoided:   {},
}

// CanTransition checks whether moving from one payment state to another is
// allowed by the lifecycle graph.
func CanTransition(from, to models.PaymentState) bool {
	allowed, exists := allowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidStateError if the transition is not
// allowed.
func ValidateTransition(orderID string, from, to models.PaymentState) error {
	if !CanTransition(from, to) {
		return &InvalidStateError{OrderID: orderID, From: from, To: to}
	}
	return nil
}
