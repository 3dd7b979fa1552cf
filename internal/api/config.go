// Package api provides the HTTP API server for the plugtrack service.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plugtrack-io/plugtrack/internal/config"
)

const (
	defaultPort           int    = 8080
	maxPort               int    = 65535
	defaultHost           string = "0.0.0.0"
	defaultCORSMaxAge     int    = 86400
	defaultTimeout               = 30 * time.Second
	defaultLogLevel              = slog.LevelInfo
	defaultMaxRequestSize int64  = 52428800 // 50 MB; tox runs attach full logs
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidMaxRequestSize indicates the max request size is zero or negative.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")
)

type (
	// ServerConfig holds HTTP server configuration.
	// Pure configuration only - no runtime dependencies.
	ServerConfig struct {
		Port               int
		Host               string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		LogLevel           slog.Level
		MaxRequestSize     int64
		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
	}

	// CORSConfig holds CORS configuration options.
	// This is defined here to keep CORS configuration centralized.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("PLUGTRACK_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("PLUGTRACK_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("PLUGTRACK_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("PLUGTRACK_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("PLUGTRACK_SERVER_TIMEOUT", defaultTimeout),
		LogLevel:        config.GetEnvLogLevel("PLUGTRACK_SERVER_LOG_LEVEL", defaultLogLevel),
		MaxRequestSize:  config.GetEnvInt64("PLUGTRACK_MAX_REQUEST_SIZE", defaultMaxRequestSize),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("PLUGTRACK_CORS_ALLOWED_ORIGINS", "*"),
		), // "*" is Development default - should be restricted in production
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("PLUGTRACK_CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr(
				"PLUGTRACK_CORS_ALLOWED_HEADERS",
				"Content-Type,X-Correlation-ID,X-Submitter",
			),
		),
		CORSMaxAge: config.GetEnvInt("PLUGTRACK_CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts ServerConfig CORS fields to middleware.CORSConfig.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// GetAllowedOrigins returns the allowed origins for CORS.
func (c *CORSConfig) GetAllowedOrigins() []string {
	return c.AllowedOrigins
}

// GetAllowedMethods returns the allowed methods for CORS.
func (c *CORSConfig) GetAllowedMethods() []string {
	return c.AllowedMethods
}

// GetAllowedHeaders returns the allowed headers for CORS.
func (c *CORSConfig) GetAllowedHeaders() []string {
	return c.AllowedHeaders
}

// GetMaxAge returns the max age for CORS preflight cache.
func (c *CORSConfig) GetMaxAge() int {
	return c.MaxAge
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	return nil
}
