package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/anomaly"
	"github.com/smukkama/tourist-safety/internal/api"
	"github.com/smukkama/tourist-safety/internal/database"
	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/history"
	"github.com/smukkama/tourist-safety/internal/logger"
	"github.com/smukkama/tourist-safety/internal/metrics"
	"github.com/smukkama/tourist-safety/internal/notification"
	"github.com/smukkama/tourist-safety/internal/queue"
	"github.com/smukkama/tourist-safety/internal/realtime"
	"github.com/smukkama/tourist-safety/internal/sos"
	"github.com/smukkama/tourist-safety/internal/timer"
	"github.com/smukkama/tourist-safety/internal/tracking"
	"github.com/smukkama/tourist-safety/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "safety-server")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	fmt.Println("Starting Tourist Safety Server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Run migrations
	if err := db.RunMigrations(ctx, "migrations", zlog); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	// Location history
	var store history.Store
	switch cfg.History.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		store = history.NewRedisStore(rdb, cfg.History.Retention)
	default:
		store = history.NewMemoryStore(cfg.History.Retention)
	}
	fmt.Printf("Location history backend: %s\n", cfg.History.Backend)

	// Anomaly detection: remote model, retried, with the local heuristic behind it
	remote := anomaly.NewRemotePredictor(cfg.ML, cfg.Detection.Risk.Medium)
	predictor := anomaly.WithFallback(
		anomaly.WithRetry(remote, anomaly.RetryPolicy{
			MaxAttempts: cfg.ML.RetryAttempts,
			Backoff:     anomaly.LinearBackoff(cfg.ML.RetryBackoff),
		}, zlog, m),
		anomaly.BasicPredictor{},
		zlog, m,
	)
	engine := anomaly.NewEngine(cfg.Detection, store, predictor, zlog, m)

	hub := realtime.NewHub(cfg.Realtime, zlog, m)

	// Outbound event, archive and notification paths
	var (
		background sync.WaitGroup
		sink       events.Sink = hub
		recorder   tracking.AnomalyRecorder
		notifier   sos.Notifier
	)
	if cfg.Kafka.Enabled {
		if err := queue.EnsureTopics(cfg.Kafka.Brokers, cfg.Kafka.Topics(), cfg.Kafka.NumPartitions); err != nil {
			zlog.Warn("topic creation failed (may already exist)", zap.Error(err))
		}

		eventProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer eventProducer.Close()
		anomalyProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAnomalies)
		defer anomalyProducer.Close()
		notificationProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer notificationProducer.Close()

		publisher := queue.NewEventPublisher(eventProducer, cfg.Kafka.EventBuffer, zlog)
		background.Add(1)
		go func() {
			defer background.Done()
			publisher.Run(ctx)
		}()

		sink = events.Multi{hub, publisher}
		recorder = queue.NewAnomalyPublisher(anomalyProducer)
		notifier = queue.NewNotificationQueue(notificationProducer)
		fmt.Printf("Kafka producers initialized (brokers=%v)\n", cfg.Kafka.Brokers)
	} else {
		recorder = db
		notifier = notification.NewDispatcher(
			notification.NewEmailNotifier(&cfg.SMTP, zlog),
			notification.NewSMSNotifier(zlog),
			zlog,
		)
		fmt.Println("Kafka disabled: archiving and notifying in-process")
	}

	// Escalation timers for unacknowledged alerts
	scheduler := timer.NewScheduler(cfg.SOS.EscalationWorkers)
	scheduler.Start()
	defer scheduler.Stop()

	alerts := sos.NewService(database.NewAlertStore(db), db, sink, notifier, zlog, m).
		WithEscalation(scheduler, cfg.SOS.EscalationAfter)

	tracker := tracking.NewTracker(cfg.Detection, engine, db, sink, recorder, alerts, notifier, zlog)

	handler := api.NewHandler(api.Deps{
		Tracker:     tracker,
		Alerts:      alerts,
		Archive:     db,
		Profiles:    db,
		Health:      remote,
		Connections: hub.Registry(),
		Logger:      zlog,
	})
	router := api.NewRouter(handler,
		http.HandlerFunc(hub.ServeWS),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		zlog)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go hub.Run(ctx)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Print statistics periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := hub.Registry().Stats()
				zlog.Info("server statistics",
					zap.Int("connections", stats.TotalConnections),
					zap.Int("max_connections", stats.MaxConnections),
					zap.Int("tourist_rooms", stats.Rooms),
					zap.Int("pending_escalations", scheduler.Pending()))
			}
		}
	}()

	fmt.Println("\n✓ Tourist Safety Server is running")
	fmt.Printf("✓ HTTP API listening on port %d\n", cfg.HTTP.Port)
	fmt.Printf("✓ WebSocket endpoint at ws://localhost:%d/ws\n", cfg.HTTP.Port)
	fmt.Println("✓ Press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		zlog.Error("http server failed", zap.Error(err))
	}

	fmt.Println("\nShutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown failed", zap.Error(err))
	}
	stop()
	background.Wait()
	fmt.Println("Tourist Safety Server stopped")
}
