// Package api provides the HTTP API server for the plugtrack service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plugtrack-io/plugtrack/internal/api/middleware"
	"github.com/plugtrack-io/plugtrack/internal/catalog"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
	"github.com/plugtrack-io/plugtrack/internal/query"
)

type (
	// Dependencies holds the runtime collaborators injected into the server.
	//
	// Configuration (what) is kept separate from dependencies (how):
	// ServerConfig carries ports and timeouts, Dependencies carries the
	// services the handlers delegate to.
	Dependencies struct {
		// Ingestion accepts submitted result batches.
		Ingestion *ingestion.Service

		// Query answers the read side: cells, plugin results, matrix.
		Query *query.Service

		// Catalog is the plugin index feed, served on /api/v1/plugins.
		// May be nil; the endpoint then serves an empty list.
		Catalog *catalog.Catalog

		// Store is used for readiness health checks only.
		Store ingestion.ResultStore

		// RateLimiter throttles submitters. Nil disables rate limiting.
		RateLimiter middleware.RateLimiter
	}

	// Server represents the HTTP API server.
	Server struct {
		httpServer *http.Server
		logger     *slog.Logger
		config     *ServerConfig
		startTime  time.Time
		deps       *Dependencies
	}
)

// NewServer creates a new HTTP server instance with structured logging and middleware stack.
func NewServer(cfg *ServerConfig, deps *Dependencies) *Server {
	// Create structured logger with configured log level
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	mux := http.NewServeMux()

	server := &Server{
		logger: logger,
		config: cfg,
		deps:   deps,
	}

	server.setupRoutes(mux)

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Apply middleware chain using functional options pattern.
	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. RateLimit - block requests before expensive operations (optional)
	//   4. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   5. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// Record server start time for uptime calculation
	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.logger.Info("Starting plugtrack API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Close result store to release database connections
	if s.deps.Store != nil {
		if store, ok := s.deps.Store.(io.Closer); ok {
			s.logger.Info("Closing result store")

			if err := store.Close(); err != nil {
				s.logger.Error("Failed to close result store", slog.String("error", err.Error()))
			}
		}
	}

	// Close rate limiter to stop (InMemoryRateLimiter) background cleanup goroutines
	if s.deps.RateLimiter != nil {
		if limiter, ok := s.deps.RateLimiter.(io.Closer); ok {
			s.logger.Info("Closing rate limiter")

			if err := limiter.Close(); err != nil {
				s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
			}
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
