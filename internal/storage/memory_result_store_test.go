package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

func sampleRecord() *ingestion.ResultRecord {
	return &ingestion.ResultRecord{
		PluginName:    "pytest-foo",
		PluginVersion: "1.0",
		Env:           "py311",
		RunnerVersion: "7.4",
		Status:        ingestion.StatusOK,
		Output:        "4 passed in 0.12s",
		Description:   "a fixture plugin",
	}
}

func TestInMemoryResultStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		store := NewInMemoryResultStore()

		outcome, err := store.Put(ctx, sampleRecord())
		if err != nil {
			t.Fatalf("Put() unexpected error: %v", err)
		}

		if outcome != ingestion.PutCreated {
			t.Errorf("Put() outcome = %v, want created", outcome)
		}

		got, err := store.Get(ctx, sampleRecord().Key())
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}

		if got.Status != ingestion.StatusOK {
			t.Errorf("Get() status = %v, want ok", got.Status)
		}

		if got.Output != "4 passed in 0.12s" {
			t.Errorf("Get() output = %q, want the stored output", got.Output)
		}
	})

	t.Run("get missing cell", func(t *testing.T) {
		store := NewInMemoryResultStore()

		key := ingestion.NewCompositeKey("pytest-missing", "1.0", "py311", "7.4")

		_, err := store.Get(ctx, key)
		if !errors.Is(err, ingestion.ErrResultNotFound) {
			t.Errorf("Get() error = %v, want ErrResultNotFound", err)
		}
	})

	t.Run("put replaces wholesale", func(t *testing.T) {
		store := NewInMemoryResultStore()

		if _, err := store.Put(ctx, sampleRecord()); err != nil {
			t.Fatalf("Put() unexpected error: %v", err)
		}

		replacement := sampleRecord()
		replacement.Status = ingestion.StatusFail
		replacement.Output = "1 failed"
		replacement.Description = ""

		outcome, err := store.Put(ctx, replacement)
		if err != nil {
			t.Fatalf("Put() unexpected error: %v", err)
		}

		if outcome != ingestion.PutUpdated {
			t.Errorf("Put() outcome = %v, want updated", outcome)
		}

		got, err := store.Get(ctx, replacement.Key())
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}

		if got.Status != ingestion.StatusFail || got.Output != "1 failed" || got.Description != "" {
			t.Errorf("Get() = %+v, want wholesale replacement (no field merge)", got)
		}
	})

	t.Run("one record per key", func(t *testing.T) {
		store := NewInMemoryResultStore()

		for i := 0; i < 3; i++ {
			if _, err := store.Put(ctx, sampleRecord()); err != nil {
				t.Fatalf("Put() unexpected error: %v", err)
			}
		}

		all, err := store.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll() unexpected error: %v", err)
		}

		if len(all) != 1 {
			t.Errorf("ListAll() len = %d, want 1", len(all))
		}
	})

	t.Run("list for plugin matches normalized name", func(t *testing.T) {
		store := NewInMemoryResultStore()

		first := sampleRecord()

		second := sampleRecord()
		second.Env = "py313"

		other := sampleRecord()
		other.PluginName = "pytest-bar"

		for _, record := range []*ingestion.ResultRecord{first, second, other} {
			if _, err := store.Put(ctx, record); err != nil {
				t.Fatalf("Put() unexpected error: %v", err)
			}
		}

		matched, err := store.ListForPlugin(ctx, "Pytest-Foo")
		if err != nil {
			t.Fatalf("ListForPlugin() unexpected error: %v", err)
		}

		if len(matched) != 2 {
			t.Errorf("ListForPlugin() len = %d, want 2", len(matched))
		}
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := NewInMemoryResultStore()

		if _, err := store.Put(ctx, sampleRecord()); err != nil {
			t.Fatalf("Put() unexpected error: %v", err)
		}

		got, err := store.Get(ctx, sampleRecord().Key())
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}

		got.Output = "mutated by caller"

		again, err := store.Get(ctx, sampleRecord().Key())
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}

		if again.Output != "4 passed in 0.12s" {
			t.Errorf("caller mutation leaked into the store: %q", again.Output)
		}
	})
}

func TestInMemoryResultStoreConcurrency(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryResultStore()

	const writers = 8

	const perWriter = 50

	var wg sync.WaitGroup

	// Concurrent puts across distinct keys plus repeated puts on one shared
	// key; readers run ListAll throughout. The race detector plus the
	// invariant checks below cover torn or duplicated records.
	for w := 0; w < writers; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := 0; i < perWriter; i++ {
				record := sampleRecord()
				record.PluginVersion = fmt.Sprintf("%d.%d", w, i)

				if _, err := store.Put(ctx, record); err != nil {
					t.Errorf("Put() unexpected error: %v", err)
				}

				shared := sampleRecord()
				if _, err := store.Put(ctx, shared); err != nil {
					t.Errorf("Put() unexpected error: %v", err)
				}
			}
		}(w)
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; i < perWriter; i++ {
			all, err := store.ListAll(ctx)
			if err != nil {
				t.Errorf("ListAll() unexpected error: %v", err)
			}

			seen := make(map[ingestion.CompositeKey]bool, len(all))

			for _, record := range all {
				if err := record.Validate(); err != nil {
					t.Errorf("ListAll() returned a torn record: %v", err)
				}

				key := record.Key()
				if seen[key] {
					t.Errorf("ListAll() returned duplicate key %v", key)
				}

				seen[key] = true
			}
		}
	}()

	wg.Wait()

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() unexpected error: %v", err)
	}

	// writers*perWriter distinct versions plus the shared "1.0" cell.
	want := writers*perWriter + 1
	if len(all) != want {
		t.Errorf("ListAll() len = %d, want %d", len(all), want)
	}
}
