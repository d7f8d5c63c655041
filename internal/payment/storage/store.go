package storage

import (
	"ms-payment-gateway/internal/models"
)

// Store is the gateway interaction log. Every call that reached the remote
// processor gets one row, approved or not, so operators can reconcile against
// processor statements.
type Store interface {
	SaveTransaction(txn *models.Transaction) error
	GetTransaction(id string) (*models.Transaction, error)
	ListTransactionsByOrder(orderID string) ([]*models.Transaction, error)
	ListTransactions(limit, offset int) ([]*models.Transaction, error)

	// Health and maintenance
	Close() error
	HealthCheck() error
}
