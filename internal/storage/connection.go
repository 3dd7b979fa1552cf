package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const connectTimeout = 5 * time.Second

// Connection wraps a pooled *sql.DB with the configuration it was opened
// with. One Connection is shared by every store in the process; stores must
// not close it themselves - ownership stays with the caller that created it.
type Connection struct {
	DB     *sql.DB
	config *Config
}

// NewConnection opens a pooled PostgreSQL connection and verifies it with a
// ping. The pool settings come from the given Config.
func NewConnection(config *Config) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	db, err := sql.Open("postgres", config.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{DB: db, config: config}, nil
}

// QueryContext executes a query that returns rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.DB.QueryContext(ctx, query, args...)
}

// ExecContext executes a query without returning rows.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.DB.ExecContext(ctx, query, args...)
}

// HealthCheck verifies the database is reachable.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	if c.DB == nil {
		return nil
	}

	return c.DB.Close()
}
