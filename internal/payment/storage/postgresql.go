package storage

import (
	"database/sql"
	"fmt"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/models"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a transaction log store using an existing
// database connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	log.Info("DATABASE", "Creating transaction log with existing database connection")

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize transaction tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize transaction tables: %w", err)
	}

	log.Info("DATABASE", "Transaction log initialized successfully with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating transactions table if not exists")

	transactionsQuery := `
    CREATE TABLE IF NOT EXISTS transactions (
        transaction_id VARCHAR(64) PRIMARY KEY,
        order_id VARCHAR(64) NOT NULL,
        kind VARCHAR(20) NOT NULL,
        gateway_ref VARCHAR(64),
        amount_minor BIGINT NOT NULL,
        currency VARCHAR(3) NOT NULL,
        status VARCHAR(20) NOT NULL,
        auth_code VARCHAR(32),
        detail VARCHAR(500),
        created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(transactionsQuery); err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transactions_order_id ON transactions(order_id);",
		"CREATE INDEX IF NOT EXISTS idx_transactions_kind ON transactions(kind);",
		"CREATE INDEX IF NOT EXISTS idx_transactions_created_date ON transactions(created_date);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Transaction tables and indexes ready")
	return nil
}

// SaveTransaction appends a gateway interaction to the log
func (s *PostgreSQLStore) SaveTransaction(txn *models.Transaction) error {
	s.log.LogDatabase("INSERT", "transactions", fmt.Sprintf("Saving transaction %s", txn.TransactionID))

	query := `
    INSERT INTO transactions (
        transaction_id, order_id, kind, gateway_ref, amount_minor, currency, status, auth_code, detail, created_date
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := s.db.Exec(query,
		txn.TransactionID, txn.OrderID, txn.Kind, nullable(txn.GatewayRef),
		txn.AmountMinor, txn.Currency, txn.Status, nullable(txn.AuthCode),
		nullable(txn.Detail), txn.CreatedDate)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// GetTransaction fetches one log row by id
func (s *PostgreSQLStore) GetTransaction(id string) (*models.Transaction, error) {
	query := `
    SELECT transaction_id, order_id, kind, COALESCE(gateway_ref, ''), amount_minor,
           currency, status, COALESCE(auth_code, ''), COALESCE(detail, ''), created_date
    FROM transactions WHERE transaction_id = $1
    `

	var txn models.Transaction
	err := s.db.QueryRow(query, id).Scan(
		&txn.TransactionID, &txn.OrderID, &txn.Kind, &txn.GatewayRef,
		&txn.AmountMinor, &txn.Currency, &txn.Status, &txn.AuthCode,
		&txn.Detail, &txn.CreatedDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// ListTransactionsByOrder fetches the gateway history of one order
func (s *PostgreSQLStore) ListTransactionsByOrder(orderID string) ([]*models.Transaction, error) {
	query := `
    SELECT transaction_id, order_id, kind, COALESCE(gateway_ref, ''), amount_minor,
           currency, status, COALESCE(auth_code, ''), COALESCE(detail, ''), created_date
    FROM transactions WHERE order_id = $1 ORDER BY created_date ASC
    `

	rows, err := s.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactions pages through the whole log, newest first
func (s *PostgreSQLStore) ListTransactions(limit, offset int) ([]*models.Transaction, error) {
	query := `
    SELECT transaction_id, order_id, kind, COALESCE(gateway_ref, ''), amount_minor,
           currency, status, COALESCE(auth_code, ''), COALESCE(detail, ''), created_date
    FROM transactions ORDER BY created_date DESC LIMIT $1 OFFSET $2
    `

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(
			&txn.TransactionID, &txn.OrderID, &txn.Kind, &txn.GatewayRef,
			&txn.AmountMinor, &txn.Currency, &txn.Status, &txn.AuthCode,
			&txn.Detail, &txn.CreatedDate); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}
	return txns, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgreSQLStore) Close() error {
	s.log.Info("DATABASE", "Closing transaction log connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
