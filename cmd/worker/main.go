// Package main is the entry point for the pharmapos background worker.
// It drains the transactional outbox and applies sale events to the
// customer purchase statistics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pharmapos/internal/domain/billing"
	"pharmapos/internal/domain/catalogs/customer"
	"pharmapos/internal/infrastructure/storage/postgres"
	"pharmapos/internal/infrastructure/storage/postgres/catalog_repo"
	"pharmapos/pkg/logger"
	"pharmapos/pkg/numerator"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting pharmapos worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	num := numerator.New(txManager)

	customerRepo := catalog_repo.NewCustomerRepo(txManager)
	customers := customer.NewService(customerRepo, txManager, num)

	handler := &saleEventHandler{customers: customers}
	relay := postgres.NewOutboxRelay(txManager, getEnvInt("OUTBOX_BATCH_SIZE", 50), handler)

	pollInterval := getEnvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second)
	run(ctx, log, relay, pool, pollInterval)

	log.Info("worker stopped")
}

// run drains the outbox until the context is cancelled.
func run(ctx context.Context, log *logger.Logger, relay *postgres.OutboxRelay, pool *postgres.Pool, pollInterval time.Duration) {
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	dlqSweep := time.NewTicker(time.Hour)
	defer dlqSweep.Stop()

	stats := time.NewTicker(time.Minute)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			processed, err := relay.ProcessBatch(ctx)
			if err != nil {
				log.Warnw("outbox batch failed", "error", err)
				continue
			}
			if processed > 0 {
				log.Infow("outbox batch processed", "count", processed)
			}

		case <-dlqSweep.C:
			moved, err := relay.MoveToDLQ(ctx)
			if err != nil {
				log.Warnw("dlq sweep failed", "error", err)
				continue
			}
			if moved > 0 {
				log.Warnw("messages moved to dlq", "count", moved)
			}

		case <-stats.C:
			postgres.LogPoolStats(ctx, pool.Unwrap())
		}
	}
}

// saleEventHandler applies outbox events to customer purchase stats.
type saleEventHandler struct {
	customers *customer.Service
}

func (h *saleEventHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	switch msg.EventType {
	case billing.EventSaleCompleted:
		var p billing.SaleCompletedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", msg.EventType, err)
		}
		return h.customers.RecordSale(ctx, p.CustomerMobile, p.CustomerName, p.Total, p.SoldAt)

	case billing.EventSaleRefunded:
		var p billing.SaleRefundedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", msg.EventType, err)
		}
		return h.customers.RecordRefund(ctx, p.CustomerMobile, p.Amount)

	default:
		// Unknown events are acknowledged so they don't wedge the queue.
		logger.Warn(ctx, "unknown outbox event", "event_type", msg.EventType, "message_id", msg.ID.String())
		return nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
