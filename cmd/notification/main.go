package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/logger"
	"github.com/smukkama/tourist-safety/internal/notification"
	"github.com/smukkama/tourist-safety/internal/queue"
	"github.com/smukkama/tourist-safety/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "notification-worker")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	fmt.Println("Starting Notification Service...")

	email := notification.NewEmailNotifier(&cfg.SMTP, zlog)

	// Test SMTP connection (optional, will skip if not configured)
	if err := email.TestConnection(); err != nil {
		zlog.Warn("smtp unavailable, emails will be logged only", zap.Error(err))
	}

	dispatcher := notification.NewDispatcher(email, notification.NewSMSNotifier(zlog), zlog)

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, "notification-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	worker, err := queue.NewNotificationWorker(consumer, dispatcher, zlog)
	if err != nil {
		zlog.Fatal("failed to create notification worker", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	fmt.Println("\n✓ Notification Service is running")
	fmt.Printf("✓ Consuming %s\n", cfg.Kafka.TopicNotifications)
	fmt.Println("✓ Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
	<-done
	fmt.Println("Notification Service stopped")
}
