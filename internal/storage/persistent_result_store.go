package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/plugtrack-io/plugtrack/internal/config"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

// resultColumns is the column list shared by every SELECT in this store, in
// scanResult order.
const resultColumns = `plugin_name, plugin_version, env, runner_version, status, output, description`

// PersistentResultStore implements ingestion.ResultStore with a PostgreSQL
// backend. This is the production store: durable across restarts, with
// per-row concurrency so puts to different cells never block each other and
// a put to one cell is an atomic wholesale replace.
//
// Snapshot consistency of ListAll comes from running it as a single
// statement: PostgreSQL MVCC gives one statement one consistent snapshot, so
// a concurrent put is either entirely visible or entirely absent, never torn.
type PersistentResultStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time interface check.
var _ ingestion.ResultStore = (*PersistentResultStore)(nil)

// NewPersistentResultStore creates a PostgreSQL-backed result store over an
// existing connection pool.
func NewPersistentResultStore(conn *Connection) *PersistentResultStore {
	return &PersistentResultStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Put writes the record at its CompositeKey with UPSERT behavior.
//
// UPSERT behavior:
//   - Unique key: (plugin_name, plugin_version, env, runner_version)
//   - On conflict: replaces status, output and description wholesale
//     (last-write-wins; no field-level merge)
//   - RETURNING (xmax = 0) detects INSERT vs UPDATE:
//     xmax = 0 means a new row was inserted, xmax != 0 means an existing
//     row was updated
//
// Records reaching Put have already been validated and normalized by the
// ingestion service; any failure here is a storage failure and wraps
// ingestion.ErrStorageUnavailable.
func (s *PersistentResultStore) Put(
	ctx context.Context,
	record *ingestion.ResultRecord,
) (ingestion.PutOutcome, error) {
	startTime := time.Now()
	key := record.Key()

	query := `
		INSERT INTO results (
			plugin_name,
			plugin_version,
			env,
			runner_version,
			status,
			output,
			description
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (plugin_name, plugin_version, env, runner_version)
		DO UPDATE SET
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			description = EXCLUDED.description,
			updated_at = CURRENT_TIMESTAMP
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool

	err := s.conn.DB.QueryRowContext(ctx, query,
		key.PluginName,
		key.PluginVersion,
		key.Env,
		key.RunnerVersion,
		string(record.Status),
		record.Output,
		record.Description,
	).Scan(&inserted)
	if err != nil {
		s.logger.Error("Result put failed",
			slog.String("plugin", key.PluginName),
			slog.String("version", key.PluginVersion),
			slog.String("env", key.Env),
			slog.String("runner_version", key.RunnerVersion),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(startTime).Milliseconds()),
		)

		return "", storageError("put result", err)
	}

	outcome := ingestion.PutUpdated
	if inserted {
		outcome = ingestion.PutCreated
	}

	s.logger.Debug("Result stored",
		slog.String("plugin", key.PluginName),
		slog.String("version", key.PluginVersion),
		slog.String("env", key.Env),
		slog.String("runner_version", key.RunnerVersion),
		slog.String("status", record.Status.String()),
		slog.String("operation", string(outcome)),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()),
	)

	return outcome, nil
}

// Get returns the record stored at key, or ingestion.ErrResultNotFound.
// The plugin name within the key is normalized before the lookup so reads
// apply the exact same identity rules as writes.
func (s *PersistentResultStore) Get(
	ctx context.Context,
	key ingestion.CompositeKey,
) (*ingestion.ResultRecord, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM results
		WHERE plugin_name = $1
		  AND plugin_version = $2
		  AND env = $3
		  AND runner_version = $4
	`

	row := s.conn.DB.QueryRowContext(ctx, query,
		ingestion.NormalizePluginName(key.PluginName),
		key.PluginVersion,
		key.Env,
		key.RunnerVersion,
	)

	record, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s-%s [%s, runner %s]", ingestion.ErrResultNotFound,
				key.PluginName, key.PluginVersion, key.Env, key.RunnerVersion)
		}

		return nil, storageError("get result", err)
	}

	return record, nil
}

// ListAll returns every stored record in deterministic order.
func (s *PersistentResultStore) ListAll(ctx context.Context) ([]*ingestion.ResultRecord, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM results
		ORDER BY plugin_name, plugin_version, env, runner_version
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storageError("list results", err)
	}

	return collectResults(rows)
}

// ListForPlugin returns all records for one plugin, matching on the
// normalized name.
func (s *PersistentResultStore) ListForPlugin(
	ctx context.Context,
	pluginName string,
) ([]*ingestion.ResultRecord, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM results
		WHERE plugin_name = $1
		ORDER BY plugin_version, env, runner_version
	`

	rows, err := s.conn.QueryContext(ctx, query, ingestion.NormalizePluginName(pluginName))
	if err != nil {
		return nil, storageError("list plugin results", err)
	}

	return collectResults(rows)
}

// HealthCheck verifies the database is reachable.
func (s *PersistentResultStore) HealthCheck(ctx context.Context) error {
	if err := s.conn.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", ingestion.ErrStorageUnavailable, err)
	}

	return nil
}

// Close is a no-op: the Connection is shared and owned by the caller that
// created it.
func (s *PersistentResultStore) Close() error {
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*ingestion.ResultRecord, error) {
	var (
		record ingestion.ResultRecord
		status string
	)

	err := row.Scan(
		&record.PluginName,
		&record.PluginVersion,
		&record.Env,
		&record.RunnerVersion,
		&status,
		&record.Output,
		&record.Description,
	)
	if err != nil {
		return nil, err
	}

	record.Status = ingestion.Status(status)

	return &record, nil
}

func collectResults(rows *sql.Rows) ([]*ingestion.ResultRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	var records []*ingestion.ResultRecord

	for rows.Next() {
		record, err := scanResult(rows)
		if err != nil {
			return nil, storageError("scan result", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("iterate results", err)
	}

	return records, nil
}

// storageError wraps a database failure as storage-unavailable, preserving
// the pq error detail for operators while giving callers a stable sentinel
// for errors.Is checks.
func storageError(operation string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w: %s: %s (%s)", ingestion.ErrStorageUnavailable, operation, pqErr.Message, pqErr.Code)
	}

	return fmt.Errorf("%w: %s: %w", ingestion.ErrStorageUnavailable, operation, err)
}
