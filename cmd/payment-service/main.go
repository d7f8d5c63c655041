package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/database/migrations"
	"ms-payment-gateway/internal/gateway"
	kafkautil "ms-payment-gateway/internal/kafka"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/order/db"
	orderkafka "ms-payment-gateway/internal/order/kafka"
	rediswrap "ms-payment-gateway/internal/order/redis"
	"ms-payment-gateway/internal/payment"
	"ms-payment-gateway/internal/payment/api"
	"ms-payment-gateway/internal/payment/storage"
	"ms-payment-gateway/internal/sse"
)

func connectPostgres(cfg config.DatabaseConfig) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("❌ Failed to open Postgres: %v", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect to Postgres: %v", err)
	}

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	ctx := context.Background()
	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	// --- PostgreSQL Setup ---
	bunDB := connectPostgres(cfg.Database)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.Up(); err != nil {
		log.Fatalf("❌ Migrations failed: %v", err)
	}

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	log.Println("🔗 Connecting to Redis...")
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	// --- Kafka Setup ---
	var producer payment.EventPublisher
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.PaymentSuccess,
			cfg.Kafka.Topics.PaymentFailed,
			cfg.Kafka.Topics.PaymentRefunded,
		}
		if err := kafkautil.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Fatalf("❌ Failed to ensure Kafka topics: %v", err)
		}
		kafkaProd := orderkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer kafkaProd.Close()
		producer = kafkaProd
	} else {
		log.Println("⚠️ Kafka disabled, payment events will not be published")
	}

	// --- Gateway Client ---
	gwClient, err := gateway.NewHTTPClient(cfg.Gateway, nil, appLogger)
	if err != nil {
		log.Fatalf("❌ Gateway client setup failed: %v", err)
	}

	mode, err := payment.ModeFromConfig(cfg.Gateway)
	if err != nil {
		log.Fatalf("❌ Invalid transaction mode: %v", err)
	}

	// --- Transaction Log ---
	txnStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, appLogger)
	if err != nil {
		log.Fatalf("❌ Transaction store setup failed: %v", err)
	}

	// --- Initialize Dependencies ---
	log.Println("📦 Initializing Payment Service...")
	machine := payment.NewMachine(gwClient, cfg.Gateway, appLogger)
	subs := payment.NewSubscriptionExtension(machine, gwClient, appLogger)
	emitter := sse.NewPaymentEventEmitter()

	service := payment.NewService(
		&db.DB{Bun: bunDB},
		rediswrap.NewRedis(redisClient),
		producer,
		txnStore,
		machine,
		subs,
		mode,
		emitter,
		cfg.Gateway,
		appLogger,
	)

	handler := api.NewHandler(service, appLogger)
	sseHandler := api.NewSSEHandler(appLogger, emitter)

	// --- Setup Router ---
	r := chi.NewRouter()
	// The callback and SSE endpoints are hit from the storefront origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Route("/api/v1", func(r chi.Router) {
		handler.Routes(r)
		r.Get("/payments/{orderId}/events", sseHandler.HandleOrderEvents)
	})

	// --- Start HTTP Server ---
	// No WriteTimeout: the SSE endpoint holds its response open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("🚀 Payment Service running on %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("📦 Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Payment service exited gracefully")
}
