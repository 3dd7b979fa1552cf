package query

import (
	"context"
	"errors"
	"testing"

	"github.com/plugtrack-io/plugtrack/internal/ingestion"
	"github.com/plugtrack-io/plugtrack/internal/storage"
)

type staticDescriptions map[string]string

func (d staticDescriptions) Describe(pluginName string) (string, bool) {
	description, ok := d[pluginName]

	return description, ok
}

func seed(t *testing.T, store ingestion.ResultStore, records ...ingestion.ResultRecord) {
	t.Helper()

	for i := range records {
		if _, err := store.Put(context.Background(), &records[i]); err != nil {
			t.Fatalf("Put() unexpected error: %v", err)
		}
	}
}

func record(name, version, env, runner string, status ingestion.Status) ingestion.ResultRecord {
	return ingestion.ResultRecord{
		PluginName:    name,
		PluginVersion: version,
		Env:           env,
		RunnerVersion: runner,
		Status:        status,
		Output:        "log for " + name + "-" + version + " " + env + "/" + runner,
	}
}

func TestStatusOf(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := storage.NewInMemoryResultStore()
	svc := NewService(store, nil)

	seed(t, store, record("pytest-foo", "1.0", "py311", "7.4", ingestion.StatusOK))

	t.Run("stored cell", func(t *testing.T) {
		status, err := svc.StatusOf(ctx, "pytest-foo", "1.0", "py311", "7.4")
		if err != nil {
			t.Fatalf("StatusOf() unexpected error: %v", err)
		}

		if status != ingestion.StatusOK {
			t.Errorf("StatusOf() = %v, want ok", status)
		}
	})

	t.Run("case-insensitive plugin name", func(t *testing.T) {
		status, err := svc.StatusOf(ctx, "Pytest-Foo", "1.0", "py311", "7.4")
		if err != nil {
			t.Fatalf("StatusOf() unexpected error: %v", err)
		}

		if status != ingestion.StatusOK {
			t.Errorf("StatusOf() = %v, want ok", status)
		}
	})

	t.Run("untested cell is not-found, not fail", func(t *testing.T) {
		_, err := svc.StatusOf(ctx, "pytest-foo", "1.0", "py313", "7.4")
		if !errors.Is(err, ingestion.ErrResultNotFound) {
			t.Errorf("StatusOf() error = %v, want ErrResultNotFound", err)
		}
	})
}

func TestOutputOf(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := storage.NewInMemoryResultStore()
	svc := NewService(store, nil)

	seed(t, store, record("pytest-foo", "1.0", "py311", "7.4", ingestion.StatusOK))

	t.Run("returns the literal log text", func(t *testing.T) {
		key := ingestion.NewCompositeKey("PYTEST-FOO", "1.0", "py311", "7.4")

		output, err := svc.OutputOf(ctx, key)
		if err != nil {
			t.Fatalf("OutputOf() unexpected error: %v", err)
		}

		want := "log for pytest-foo-1.0 py311/7.4"
		if output != want {
			t.Errorf("OutputOf() = %q, want %q", output, want)
		}
	})

	t.Run("missing cell", func(t *testing.T) {
		key := ingestion.NewCompositeKey("pytest-foo", "2.0", "py311", "7.4")

		if _, err := svc.OutputOf(ctx, key); !errors.Is(err, ingestion.ErrResultNotFound) {
			t.Errorf("OutputOf() error = %v, want ErrResultNotFound", err)
		}
	})
}

func TestResultsOfOrdering(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := storage.NewInMemoryResultStore()
	svc := NewService(store, nil)

	seed(t, store,
		record("pytest-foo", "1.2", "py313", "7.4", ingestion.StatusOK),
		record("pytest-foo", "1.10", "py311", "7.4", ingestion.StatusOK),
		record("pytest-foo", "1.2", "py311", "8.0", ingestion.StatusFail),
		record("pytest-foo", "1.2", "py311", "7.4", ingestion.StatusOK),
		record("pytest-bar", "9.9", "py311", "7.4", ingestion.StatusError),
	)

	results, err := svc.ResultsOf(ctx, "pytest-foo")
	if err != nil {
		t.Fatalf("ResultsOf() unexpected error: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("ResultsOf() len = %d, want 4", len(results))
	}

	// 1.10 > 1.2 under loose version ordering (not lexicographic), then env
	// ascending, then runner version ascending.
	wantOrder := []struct {
		version, env, runner string
	}{
		{"1.10", "py311", "7.4"},
		{"1.2", "py311", "7.4"},
		{"1.2", "py311", "8.0"},
		{"1.2", "py313", "7.4"},
	}

	for i, want := range wantOrder {
		got := results[i]
		if got.PluginVersion != want.version || got.Env != want.env || got.RunnerVersion != want.runner {
			t.Errorf("ResultsOf()[%d] = %s/%s/%s, want %s/%s/%s",
				i, got.PluginVersion, got.Env, got.RunnerVersion, want.version, want.env, want.runner)
		}
	}
}

func TestResultsOfDescriptionBackfill(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := storage.NewInMemoryResultStore()
	svc := NewService(store, staticDescriptions{"pytest-foo": "from the catalog"})

	submitted := record("pytest-foo", "1.0", "py311", "7.4", ingestion.StatusOK)
	submitted.Description = ""

	kept := record("pytest-foo", "1.0", "py313", "7.4", ingestion.StatusOK)
	kept.Description = "as submitted"

	seed(t, store, submitted, kept)

	results, err := svc.ResultsOf(ctx, "pytest-foo")
	if err != nil {
		t.Fatalf("ResultsOf() unexpected error: %v", err)
	}

	for _, got := range results {
		switch got.Env {
		case "py311":
			if got.Description != "from the catalog" {
				t.Errorf("empty description not backfilled: %q", got.Description)
			}
		case "py313":
			if got.Description != "as submitted" {
				t.Errorf("submitted description overwritten: %q", got.Description)
			}
		}
	}
}

func TestMatrix(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := storage.NewInMemoryResultStore()
	svc := NewService(store, nil)

	seed(t, store,
		record("pytest-foo", "1.0", "py311", "7.4", ingestion.StatusOK),
		record("pytest-foo", "1.0", "py313", "7.4", ingestion.StatusFail),
		record("pytest-foo", "0.9", "py311", "7.4", ingestion.StatusError),
		record("pytest-bar", "2.0", "py311", "8.0", ingestion.StatusOK),
	)

	matrix, err := svc.Matrix(ctx)
	if err != nil {
		t.Fatalf("Matrix() unexpected error: %v", err)
	}

	t.Run("contains exactly the ingested cells", func(t *testing.T) {
		cells := matrix["pytest-foo"]["1.0"]
		if len(cells) != 2 {
			t.Fatalf("matrix[pytest-foo][1.0] has %d cells, want 2", len(cells))
		}

		if cells[CellKey{Env: "py311", RunnerVersion: "7.4"}] != ingestion.StatusOK {
			t.Errorf("cell py311/7.4 = %v, want ok", cells[CellKey{Env: "py311", RunnerVersion: "7.4"}])
		}

		if cells[CellKey{Env: "py313", RunnerVersion: "7.4"}] != ingestion.StatusFail {
			t.Errorf("cell py313/7.4 = %v, want fail", cells[CellKey{Env: "py313", RunnerVersion: "7.4"}])
		}
	})

	t.Run("absence is distinct from fail", func(t *testing.T) {
		cells := matrix["pytest-foo"]["1.0"]

		status, tested := cells[CellKey{Env: "py39", RunnerVersion: "7.4"}]
		if tested {
			t.Errorf("never-ingested cell reports status %v, want absent", status)
		}
	})

	t.Run("groups by plugin then version", func(t *testing.T) {
		if len(matrix) != 2 {
			t.Errorf("matrix has %d plugins, want 2", len(matrix))
		}

		if len(matrix["pytest-foo"]) != 2 {
			t.Errorf("matrix[pytest-foo] has %d versions, want 2", len(matrix["pytest-foo"]))
		}
	})

	t.Run("latest runner version", func(t *testing.T) {
		if got := matrix.LatestRunnerVersion(); got != "8.0" {
			t.Errorf("LatestRunnerVersion() = %q, want %q", got, "8.0")
		}
	})

	t.Run("empty matrix", func(t *testing.T) {
		empty, err := NewService(storage.NewInMemoryResultStore(), nil).Matrix(ctx)
		if err != nil {
			t.Fatalf("Matrix() unexpected error: %v", err)
		}

		if len(empty) != 0 {
			t.Errorf("empty store produced %d matrix entries", len(empty))
		}

		if got := empty.LatestRunnerVersion(); got != "" {
			t.Errorf("LatestRunnerVersion() on empty matrix = %q, want empty", got)
		}
	})
}
