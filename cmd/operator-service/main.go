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

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-payment-gateway/internal/auth"
	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/order/db"
	orderkafka "ms-payment-gateway/internal/order/kafka"
	rediswrap "ms-payment-gateway/internal/order/redis"
	"ms-payment-gateway/internal/payment"
	handlers "ms-payment-gateway/internal/payment/handler"
	"ms-payment-gateway/internal/payment/storage"
	"ms-payment-gateway/internal/utils"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("❌ Failed to open Postgres: %v", err)
	}
	defer sqldb.Close()
	if err := sqldb.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect to Postgres: %v", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	var producer payment.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaProd := orderkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer kafkaProd.Close()
		producer = kafkaProd
	}

	gwClient, err := gateway.NewHTTPClient(cfg.Gateway, nil, appLogger)
	if err != nil {
		log.Fatalf("❌ Gateway client setup failed: %v", err)
	}

	mode, err := payment.ModeFromConfig(cfg.Gateway)
	if err != nil {
		log.Fatalf("❌ Invalid transaction mode: %v", err)
	}

	txnStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, appLogger)
	if err != nil {
		log.Fatalf("❌ Transaction store setup failed: %v", err)
	}

	machine := payment.NewMachine(gwClient, cfg.Gateway, appLogger)
	subs := payment.NewSubscriptionExtension(machine, gwClient, appLogger)
	service := payment.NewService(
		&db.DB{Bun: bunDB},
		rediswrap.NewRedis(redisClient),
		producer,
		txnStore,
		machine,
		subs,
		mode,
		nil,
		cfg.Gateway,
		appLogger,
	)

	operatorHandler := handlers.NewOperatorHandler(service, txnStore, appLogger)

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		if err := txnStore.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Unhealthy", err.Error()))
			return
		}
		c.JSON(http.StatusOK, utils.SuccessResponse("Healthy", nil))
	})

	// Operator actions sit behind OIDC; the shopper-facing flow never
	// reaches this service.
	admin := router.Group("/admin")
	admin.Use(ginWrap(auth.Middleware()))
	{
		admin.POST("/orders/:orderId/capture", operatorHandler.Capture)
		admin.POST("/orders/:orderId/void", operatorHandler.Void)
		admin.POST("/orders/:orderId/refund", operatorHandler.Refund)
		admin.POST("/orders/:orderId/charge", operatorHandler.ScheduledCharge)
		admin.GET("/orders/:orderId/transactions", operatorHandler.GetOrderTransactions)
		admin.GET("/transactions", operatorHandler.ListTransactions)
	}

	port := os.Getenv("OPERATOR_PORT")
	if port == "" {
		port = ":8081"
	}
	server := &http.Server{
		Addr:    port,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Operator Service running on %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("📦 Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}
	log.Println("✅ Operator service exited gracefully")
}

// ginWrap adapts a net/http middleware to gin, preserving the request
// context the middleware may have enriched.
func ginWrap(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
			return
		}
		c.Next()
	}
}
