// Package main provides the plugtrack compatibility tracking service.
//
// This is the HTTP API server: it accepts result batches from runner workers
// and serves the query surface (cell status, plugin results, the full
// compatibility matrix and the plugin catalog feed).
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/plugtrack-io/plugtrack/internal/aliasing"
	"github.com/plugtrack-io/plugtrack/internal/api"
	"github.com/plugtrack-io/plugtrack/internal/api/middleware"
	"github.com/plugtrack-io/plugtrack/internal/catalog"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
	"github.com/plugtrack-io/plugtrack/internal/query"
	"github.com/plugtrack-io/plugtrack/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "plugtrack"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting plugtrack service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Rate limiter (graceful shutdown handled by server.shutdown())
	middlewareConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("submitter_rps", middlewareConfig.SubmitterRPS),
		slog.Int("anon_rps", middlewareConfig.AnonRPS),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	resultStore := storage.NewPersistentResultStore(dbConn)

	logger.Info("Result store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	// Optional env alias map; missing or invalid config degrades to passthrough
	aliasConfig, err := aliasing.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("Failed to load alias configuration, continuing without aliases",
			slog.String("error", err.Error()),
		)
	}

	envResolver := aliasing.NewResolver(aliasConfig)
	if envResolver.AliasCount() > 0 {
		logger.Info("Environment aliasing enabled",
			slog.Int("aliases", envResolver.AliasCount()),
		)
	}

	// Plugin catalog feed; absence is fine, the discovery job may not have run
	pluginCatalog := catalog.LoadFromEnv(logger)

	server := api.NewServer(serverConfig, &api.Dependencies{
		Ingestion:   ingestion.NewService(resultStore, envResolver, logger),
		Query:       query.NewService(resultStore, pluginCatalog),
		Catalog:     pluginCatalog,
		Store:       resultStore,
		RateLimiter: rateLimiter,
	})

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("plugtrack service stopped")
}
