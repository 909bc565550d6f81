package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/internal/config"
	"github.com/codezest-academy/codezest-notifications/internal/dispatch"
	"github.com/codezest-academy/codezest-notifications/internal/httpserver"
	"github.com/codezest-academy/codezest-notifications/internal/queue"
	"github.com/codezest-academy/codezest-notifications/pkg/db"
	"github.com/codezest-academy/codezest-notifications/pkg/logger"
	"github.com/codezest-academy/codezest-notifications/pkg/mq"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting notification API...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
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

	// MQ publisher for lifecycle events. The broker is an observability
	// sink: running without it is allowed.
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

	// Dispatch service
	var events dispatch.EventPublisher
	if publisher != nil {
		events = publisher
	}
	dispatcher := dispatch.NewService(jobQueue, events, log)

	// HTTP server
	handler := httpserver.NewNotificationHandler(dispatcher, jobQueue, log)
	router := httpserver.NewRouter(handler, cfg.JWT.Secret, dbConn)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notification API is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification API gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("notification API shutdown complete")
}
