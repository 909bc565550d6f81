package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	contracts "github.com/codezest-academy/codezest-notifications/contracts/mq"
	"github.com/codezest-academy/codezest-notifications/internal/config"
	"github.com/codezest-academy/codezest-notifications/internal/dispatch"
	"github.com/codezest-academy/codezest-notifications/internal/mqhandler"
	"github.com/codezest-academy/codezest-notifications/internal/provider"
	"github.com/codezest-academy/codezest-notifications/internal/queue"
	"github.com/codezest-academy/codezest-notifications/internal/repository"
	"github.com/codezest-academy/codezest-notifications/internal/worker"
	"github.com/codezest-academy/codezest-notifications/pkg/db"
	"github.com/codezest-academy/codezest-notifications/pkg/logger"
	"github.com/codezest-academy/codezest-notifications/pkg/mq"
	pkgredis "github.com/codezest-academy/codezest-notifications/pkg/redis"
	"github.com/codezest-academy/codezest-notifications/pkg/util"
)

const requestedQueueName = "notification.requested.q"

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting notification worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("pool_size", cfg.Worker.PoolSize),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Durable queue
	jobQueue := queue.NewPostgres(dbConn, cfg.QueuePolicy())
	if err := jobQueue.EnsureSchema(context.Background()); err != nil {
		log.Fatal("Failed to ensure queue schema", zap.Error(err))
	}

	// Inbox and contact repositories
	inboxRepo := repository.NewInboxRepository(dbConn)
	if err := inboxRepo.EnsureSchema(context.Background()); err != nil {
		log.Fatal("Failed to ensure inbox schema", zap.Error(err))
	}
	contacts := repository.NewContactRepository(dbConn)

	// Redis deduper. Markers outlive the longest plausible retry window.
	rdb := pkgredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)

	// MQ publisher for lifecycle events
	var publisher *mq.Publisher
	if cfg.MQ.URL != "" {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Warn("MQ publisher unavailable, lifecycle events disabled", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	// Provider registry. Every channel must have exactly one provider
	// before the pool may start.
	registry := provider.NewRegistry()
	mustRegister := func(p provider.Provider) {
		if err := registry.Register(p); err != nil {
			log.Fatal("Failed to register provider", zap.Error(err))
		}
	}
	mustRegister(provider.NewEmail(cfg.SMTP, contacts, log))
	mustRegister(provider.NewSMS(cfg.SMS, contacts, log))
	mustRegister(provider.NewPush(cfg.Push, log))
	mustRegister(provider.NewInApp(inboxRepo, log))

	var workerEvents worker.EventPublisher
	if publisher != nil {
		workerEvents = publisher
	}
	pool := worker.NewPool(jobQueue, registry, deduper, workerEvents, worker.Config{
		PoolSize:        cfg.Worker.PoolSize,
		PollInterval:    cfg.Worker.PollInterval(),
		DeliveryTimeout: cfg.Worker.DeliveryTimeout(),
		MaxAttempts:     cfg.QueuePolicy().MaxAttempts,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		log.Fatal("Failed to start worker pool", zap.Error(err))
	}

	// Consume notification.requested from other services and feed the
	// dispatch pipeline. Optional, same as the publisher.
	var consumer *mq.Consumer
	if cfg.MQ.URL != "" {
		var dispatchEvents dispatch.EventPublisher
		if publisher != nil {
			dispatchEvents = publisher
		}
		dispatcher := dispatch.NewService(jobQueue, dispatchEvents, log)
		handler := mqhandler.NewNotificationRequestedHandler(dispatcher, log)

		consumer, err = mq.NewConsumer(cfg.MQ.URL, requestedQueueName, contracts.RoutingKeyRequested, log)
		if err != nil {
			log.Warn("MQ consumer unavailable, requested intake disabled", zap.Error(err))
			consumer = nil
		} else {
			consumer.SetHandler(handler.Handle)
			go func() {
				if err := consumer.StartConsuming(); err != nil {
					log.Error("MQ consumer stopped", zap.Error(err))
				}
			}()
			defer consumer.Close()
		}
	}

	log.Info("notification worker is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification worker gracefully...")

	if consumer != nil {
		consumer.Stop()
	}
	cancel()
	pool.Stop()

	log.Info("notification worker shutdown complete")
}
