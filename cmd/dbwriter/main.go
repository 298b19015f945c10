package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/database"
	"github.com/smukkama/tourist-safety/internal/logger"
	"github.com/smukkama/tourist-safety/internal/queue"
	"github.com/smukkama/tourist-safety/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "anomaly-writer")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Starting Anomaly Archive Writer...")
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	fmt.Println("Connected to database")

	if err := db.RunMigrations(ctx, "migrations", zlog); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAnomalies, "anomaly-writer-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	batchWriter := queue.NewBatchWriter(consumer, db, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval, zlog)
	batchWriter.Start(ctx)
	fmt.Println("Batch writer started")

	// Print consumer stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := consumer.Stats()
				zlog.Info("consumer stats",
					zap.Int64("messages", stats.Messages),
					zap.Int64("bytes", stats.Bytes),
					zap.Int64("errors", stats.Errors),
					zap.Int64("lag", stats.Lag))
			}
		}
	}()

	fmt.Println("\n✓ Anomaly Archive Writer is running")
	fmt.Printf("✓ Consuming %s and writing to PostgreSQL\n", cfg.Kafka.TopicAnomalies)
	fmt.Printf("✓ Batch size: %d records | Flush interval: %s\n", cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
	fmt.Println("✓ Press Ctrl+C to stop")
	fmt.Println("\nWaiting for messages...")

	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
	batchWriter.Stop()
	fmt.Println("Anomaly Archive Writer stopped")
}
