package main

import (
	"fmt"

	"github.com/plugtrack-io/plugtrack/internal/config"
	"github.com/plugtrack-io/plugtrack/internal/storage"
)

// Config holds all configuration for the migration tool.
//
// Migrations themselves are embedded in the binary, so no filesystem path
// is needed.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// MigrationTable is the name of the table that tracks applied migrations
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	return nil
}

// String returns a string representation of the configuration safe for logging.
func (c *Config) String() string {
	masked := storage.NewConfig(c.DatabaseURL).MaskDatabaseURL()

	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}", masked, c.MigrationTable)
}
