// Package ingestion provides domain models and result persistence interfaces.
//
// This package defines the ResultStore interface which represents what the
// domain needs for result persistence, following the Dependency Inversion
// Principle. Concrete implementations (PostgreSQL, in-memory) live in the
// internal/storage package.
package ingestion

import (
	"context"
	"errors"
)

// PutOutcome reports whether a Put created a new cell or replaced an
// existing one. Ingestion reporting depends on the distinction; callers that
// only care about success can ignore it.
type PutOutcome string

const (
	// PutCreated indicates no record existed at the key before the write.
	PutCreated PutOutcome = "created"

	// PutUpdated indicates an existing record at the key was replaced
	// wholesale (last-write-wins, no field merge).
	PutUpdated PutOutcome = "updated"
)

// Store-level sentinel errors.
var (
	// ErrResultNotFound is returned by lookups for a key that has no stored
	// result. An untested cell is an absent result, not a failure: callers
	// surface it as "untested", distinct from StatusFail and StatusError.
	ErrResultNotFound = errors.New("result not found")

	// ErrStorageUnavailable is returned when the backing store is
	// unreachable (connection refused, query timeout, ...). It is fatal to
	// the current operation and propagates to the caller untouched so the
	// surrounding service can decide on retry/backoff; the core never
	// retries silently.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ResultStore defines the interface for compatibility result persistence.
//
// The domain package defines this interface to specify what it needs for
// result storage, without depending on concrete implementations.
//
// Implementations must guarantee:
//   - At most one ResultRecord per CompositeKey at any time.
//   - Put is atomic per-key: a concurrent Get or ListAll never observes a
//     partially written record; the record is replaced wholesale.
//   - Puts to different keys do not block each other (the store is indexed
//     by key, not scanned).
//   - ListAll is snapshot-consistent: a write completing strictly before the
//     call is included, a write completing after may or may not be, and no
//     record is ever returned torn or duplicated.
//   - Operations fail only with storage-unavailable kinds; validation
//     happens upstream in the ingestion service, before Put.
type ResultStore interface {
	// Put writes the record at its CompositeKey, overwriting any existing
	// value, and reports whether the cell was created or updated.
	Put(ctx context.Context, record *ResultRecord) (PutOutcome, error)

	// Get returns the record stored at key, or an error wrapping
	// ErrResultNotFound when the cell has never been ingested.
	Get(ctx context.Context, key CompositeKey) (*ResultRecord, error)

	// ListAll returns every stored record, snapshot-consistent at call time.
	ListAll(ctx context.Context) ([]*ResultRecord, error)

	// ListForPlugin returns all records for one plugin, matching on the
	// normalized name.
	ListForPlugin(ctx context.Context, pluginName string) ([]*ResultRecord, error)

	// HealthCheck verifies the storage backend is healthy and ready to serve
	// requests. Used by readiness probes and health endpoints. Returns nil if
	// healthy, error with details if unhealthy.
	HealthCheck(ctx context.Context) error
}
