package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/plugtrack-io/plugtrack/internal/config"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

func setupStore(t *testing.T) (*PersistentResultStore, context.Context) {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := &Connection{DB: testDB.Connection}

	return NewPersistentResultStore(conn), ctx
}

func TestPersistentResultStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	t.Run("put creates then updates", func(t *testing.T) {
		record := sampleRecord()

		outcome, err := store.Put(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, ingestion.PutCreated, outcome)

		record.Status = ingestion.StatusFail
		record.Output = "1 failed"

		outcome, err = store.Put(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, ingestion.PutUpdated, outcome)

		got, err := store.Get(ctx, record.Key())
		require.NoError(t, err)
		assert.Equal(t, ingestion.StatusFail, got.Status)
		assert.Equal(t, "1 failed", got.Output)
	})

	t.Run("get is case-insensitive on plugin name only", func(t *testing.T) {
		record := sampleRecord()
		record.PluginName = "pytest-case"

		_, err := store.Put(ctx, record)
		require.NoError(t, err)

		got, err := store.Get(ctx, ingestion.CompositeKey{
			PluginName:    "Pytest-Case",
			PluginVersion: "1.0",
			Env:           "py311",
			RunnerVersion: "7.4",
		})
		require.NoError(t, err)
		assert.Equal(t, "pytest-case", got.PluginName)

		// Exact match on the remaining fields.
		_, err = store.Get(ctx, ingestion.CompositeKey{
			PluginName:    "pytest-case",
			PluginVersion: "1.0",
			Env:           "PY311",
			RunnerVersion: "7.4",
		})
		assert.ErrorIs(t, err, ingestion.ErrResultNotFound)
	})

	t.Run("get missing cell", func(t *testing.T) {
		key := ingestion.NewCompositeKey("pytest-never-tested", "9.9", "py311", "7.4")

		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ingestion.ErrResultNotFound)
	})

	t.Run("list for plugin", func(t *testing.T) {
		record := sampleRecord()
		record.PluginName = "pytest-listed"

		_, err := store.Put(ctx, record)
		require.NoError(t, err)

		second := sampleRecord()
		second.PluginName = "pytest-listed"
		second.RunnerVersion = "8.0"

		_, err = store.Put(ctx, second)
		require.NoError(t, err)

		matched, err := store.ListForPlugin(ctx, "PYTEST-Listed")
		require.NoError(t, err)
		assert.Len(t, matched, 2)

		for _, got := range matched {
			assert.Equal(t, "pytest-listed", got.PluginName)
		}
	})

	t.Run("concurrent puts on the same cell settle on one record", func(t *testing.T) {
		const writers = 10

		var wg sync.WaitGroup

		for i := 0; i < writers; i++ {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				record := sampleRecord()
				record.PluginName = "pytest-race"

				if i%2 == 0 {
					record.Status = ingestion.StatusOK
				} else {
					record.Status = ingestion.StatusFail
				}

				_, err := store.Put(ctx, record)
				assert.NoError(t, err)
			}(i)
		}

		wg.Wait()

		matched, err := store.ListForPlugin(ctx, "pytest-race")
		require.NoError(t, err)
		require.Len(t, matched, 1)
		assert.True(t, matched[0].Status.IsValid(), "stored record must never be torn")
	})

	t.Run("survives reconnect semantics via ListAll determinism", func(t *testing.T) {
		all, err := store.ListAll(ctx)
		require.NoError(t, err)

		again, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, all, again, "ListAll must be deterministic when nothing writes in between")
	})

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
