// Package main provides the Kafka ingestion bridge for plugtrack.
//
// CI fleets that cannot reach the HTTP API directly publish result batches to
// a Kafka topic; this service consumes them and feeds the same ingestion
// pipeline the API server uses. Delivery is at-least-once: ingestion is
// idempotent per cell, so replays are safe.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/plugtrack-io/plugtrack/internal/aliasing"
	"github.com/plugtrack-io/plugtrack/internal/config"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
	"github.com/plugtrack-io/plugtrack/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "ingester"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("PLUGTRACK_LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting plugtrack ingester",
		slog.String("service", name),
		slog.String("version", version),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	resultStore := storage.NewPersistentResultStore(dbConn)

	logger.Info("Result store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	aliasConfig, err := aliasing.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("Failed to load alias configuration, continuing without aliases",
			slog.String("error", err.Error()),
		)
	}

	service := ingestion.NewService(resultStore, aliasing.NewResolver(aliasConfig), logger)

	consumerConfig := ingestion.LoadConsumerConfig()

	consumer, err := ingestion.NewConsumer(consumerConfig, service, logger)
	if err != nil {
		logger.Error("Failed to create Kafka consumer", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	defer func() {
		_ = consumer.Close()
	}()

	// Cancel the consume loop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Consuming result batches",
		slog.String("topic", consumerConfig.Topic),
		slog.String("group_id", consumerConfig.GroupID),
	)

	if err := consumer.Run(ctx); err != nil {
		logger.Error("Consumer stopped with error", slog.String("error", err.Error()))

		_ = consumer.Close()
		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("plugtrack ingester stopped")
}
