package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	Topics   TopicConfig
	MockMode bool
	Enabled  bool
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type TopicConfig struct {
	PaymentSuccess  string
	PaymentFailed   string
	PaymentRefunded string
}

// GatewayConfig holds the remote processor credentials and the per-installation
// transaction mode. Keys are explicit here rather than ambient process state so
// a client is always constructed against one known configuration.
type GatewayConfig struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	Sandbox    bool

	// TxnMode is "purchase" or "authorize"; Integration is "modal" or
	// "embedded". Both are fixed per installation, not per call.
	TxnMode     string
	Integration string

	ReturnURL   string
	CartURL     string
	CallbackURL string

	// AlreadyCapturedCode is the remote error code treated as idempotent
	// capture success. It is processor specific, hence configurable.
	AlreadyCapturedCode string

	Timeout time.Duration
}

func Load() *Config {
	kafkaEnabled := getEnvBool("KAFKA_ENABLED", true)
	mockMode := getEnvBool("KAFKA_MOCK_MODE", false)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "payment_user"),
			Password:     getEnv("DB_PASSWORD", "payment_pass"),
			Database:     getEnv("DB_NAME", "payment_gateway"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID:  getEnv("KAFKA_GROUP_ID", "payment-gateway-group"),
			Enabled:  kafkaEnabled,
			MockMode: mockMode,
			Topics: TopicConfig{
				PaymentSuccess:  getEnv("KAFKA_TOPIC_SUCCESS", "payment-success"),
				PaymentFailed:   getEnv("KAFKA_TOPIC_FAILED", "payment-failed"),
				PaymentRefunded: getEnv("KAFKA_TOPIC_REFUNDED", "payment-refunded"),
			},
		},
		Gateway: GatewayConfig{
			BaseURL:             getEnv("GATEWAY_BASE_URL", "https://api.simplify.com/v1/api"),
			PublicKey:           getEnv("GATEWAY_PUBLIC_KEY", ""),
			PrivateKey:          getEnv("GATEWAY_PRIVATE_KEY", ""),
			Sandbox:             getEnvBool("GATEWAY_SANDBOX", true),
			TxnMode:             getEnv("GATEWAY_TXN_MODE", "purchase"),
			Integration:         getEnv("GATEWAY_INTEGRATION", "modal"),
			ReturnURL:           getEnv("GATEWAY_RETURN_URL", "http://localhost:3000/checkout/complete"),
			CartURL:             getEnv("GATEWAY_CART_URL", "http://localhost:3000/cart"),
			CallbackURL:         getEnv("GATEWAY_CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback"),
			AlreadyCapturedCode: getEnv("GATEWAY_ALREADY_CAPTURED_CODE", "PAYMENT_ALREADY_CAPTURED"),
			Timeout:             time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
