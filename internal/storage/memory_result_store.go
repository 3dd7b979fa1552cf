package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

// InMemoryResultStore provides thread-safe in-memory storage for
// compatibility test results. Used in unit tests and local development; the
// PostgreSQL-backed PersistentResultStore is the production implementation.
//
// Records are copied on the way in and on the way out, so a record obtained
// from the store is never a live reference into it: concurrent writers can
// never tear a record a reader holds. ListAll copies the full record set
// under the read lock, which makes it a consistent snapshot at call time.
type InMemoryResultStore struct {
	// records maps cell keys to the latest record for that cell
	records map[ingestion.CompositeKey]ingestion.ResultRecord
	// byPlugin maps normalized plugin names to the keys of their cells
	byPlugin map[string][]ingestion.CompositeKey
	// mutex protects concurrent access to both maps
	mutex sync.RWMutex
}

// Compile-time interface check.
var _ ingestion.ResultStore = (*InMemoryResultStore)(nil)

// NewInMemoryResultStore creates a new thread-safe in-memory result store.
func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{
		records:  make(map[ingestion.CompositeKey]ingestion.ResultRecord),
		byPlugin: make(map[string][]ingestion.CompositeKey),
	}
}

// Put writes the record at its CompositeKey, replacing any existing value
// wholesale, and reports whether the cell was created or updated.
func (s *InMemoryResultStore) Put(_ context.Context, record *ingestion.ResultRecord) (ingestion.PutOutcome, error) {
	key := record.Key()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, exists := s.records[key]
	s.records[key] = *record

	if exists {
		return ingestion.PutUpdated, nil
	}

	s.byPlugin[key.PluginName] = append(s.byPlugin[key.PluginName], key)

	return ingestion.PutCreated, nil
}

// Get returns the record stored at key, or ErrResultNotFound.
func (s *InMemoryResultStore) Get(_ context.Context, key ingestion.CompositeKey) (*ingestion.ResultRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, exists := s.records[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s-%s [%s, runner %s]", ingestion.ErrResultNotFound,
			key.PluginName, key.PluginVersion, key.Env, key.RunnerVersion)
	}

	// record is already a copy
	return &record, nil
}

// ListAll returns every stored record, snapshot-consistent at call time.
func (s *InMemoryResultStore) ListAll(_ context.Context) ([]*ingestion.ResultRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	all := make([]*ingestion.ResultRecord, 0, len(s.records))

	for key := range s.records {
		record := s.records[key]
		all = append(all, &record)
	}

	return all, nil
}

// ListForPlugin returns all records for one plugin, matching on the
// normalized name.
func (s *InMemoryResultStore) ListForPlugin(_ context.Context, pluginName string) ([]*ingestion.ResultRecord, error) {
	normalized := ingestion.NormalizePluginName(pluginName)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := s.byPlugin[normalized]
	matched := make([]*ingestion.ResultRecord, 0, len(keys))

	for _, key := range keys {
		record := s.records[key]
		matched = append(matched, &record)
	}

	return matched, nil
}

// HealthCheck always reports healthy for the in-memory store.
func (s *InMemoryResultStore) HealthCheck(_ context.Context) error {
	return nil
}
