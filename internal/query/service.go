// Package query answers read-side questions about the compatibility matrix.
//
// Every query is a pure read of current ResultStore state: the matrix is a
// derived projection computed on demand, never stored. Absent cells are
// "untested", which is deliberately distinct from a stored fail or error.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

type (
	// CellKey identifies one runtime configuration within a plugin version:
	// interpreter environment plus forced runner version.
	CellKey struct {
		Env           string `json:"env"`
		RunnerVersion string `json:"pytest"`
	}

	// Cells maps runtime configurations to their latest status.
	Cells map[CellKey]ingestion.Status

	// Matrix is the full compatibility pivot: plugin name -> plugin version
	// -> cells. A (plugin, version) entry contains exactly the cells that
	// were ingested for it and no others.
	Matrix map[string]map[string]Cells

	// DescriptionSource supplies plugin summary lines for display. The
	// catalog package provides the index-backed implementation; a nil source
	// leaves descriptions as submitted.
	DescriptionSource interface {
		Describe(pluginName string) (string, bool)
	}

	// Service answers status, listing, output and matrix queries against a
	// ResultStore.
	Service struct {
		store        ingestion.ResultStore
		descriptions DescriptionSource
	}
)

// NewService creates a query service over the given store.
// descriptions may be nil.
func NewService(store ingestion.ResultStore, descriptions DescriptionSource) *Service {
	return &Service{
		store:        store,
		descriptions: descriptions,
	}
}

// StatusOf returns the latest status for one cell, or an error wrapping
// ingestion.ErrResultNotFound when the cell has never been tested.
// Lookup is case-insensitive on the plugin name only; version, env and
// runner version are exact.
func (s *Service) StatusOf(
	ctx context.Context,
	pluginName, pluginVersion, env, runnerVersion string,
) (ingestion.Status, error) {
	key := ingestion.NewCompositeKey(pluginName, pluginVersion, env, runnerVersion)

	record, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}

	return record.Status, nil
}

// OutputOf returns the raw execution log for one cell, or an error wrapping
// ingestion.ErrResultNotFound. Same identity rules as StatusOf.
func (s *Service) OutputOf(ctx context.Context, key ingestion.CompositeKey) (string, error) {
	record, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}

	return record.Output, nil
}

// ResultsOf returns all results for one plugin in stable display order:
// plugin version descending (loose version ordering), then env, then runner
// version. The ordering is deterministic so rendered tables and badge caches
// keyed on it are reproducible.
//
// Empty descriptions are backfilled from the catalog feed when a source is
// configured; the record in the store is not modified.
func (s *Service) ResultsOf(ctx context.Context, pluginName string) ([]*ingestion.ResultRecord, error) {
	records, err := s.store.ListForPlugin(ctx, pluginName)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if c := compareVersions(records[i].PluginVersion, records[j].PluginVersion); c != 0 {
			return c > 0 // version descending
		}

		if records[i].Env != records[j].Env {
			return records[i].Env < records[j].Env
		}

		return records[i].RunnerVersion < records[j].RunnerVersion
	})

	if s.descriptions != nil {
		for _, record := range records {
			if record.Description != "" {
				continue
			}

			if description, ok := s.descriptions.Describe(record.PluginName); ok {
				record.Description = description
			}
		}
	}

	return records, nil
}

// Matrix builds the full compatibility pivot in a single pass over ListAll.
//
// The result is grouped by plugin name, then plugin version, each cell keyed
// by (env, runner version). Cells that were never ingested are simply absent:
// callers render absence as "untested".
func (s *Service) Matrix(ctx context.Context) (Matrix, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	matrix := make(Matrix)

	for _, record := range records {
		versions, ok := matrix[record.PluginName]
		if !ok {
			versions = make(map[string]Cells)
			matrix[record.PluginName] = versions
		}

		cells, ok := versions[record.PluginVersion]
		if !ok {
			cells = make(Cells)
			versions[record.PluginVersion] = cells
		}

		cells[CellKey{Env: record.Env, RunnerVersion: record.RunnerVersion}] = record.Status
	}

	return matrix, nil
}

// LatestRunnerVersion returns the highest runner version appearing anywhere
// in the matrix, using loose version ordering. Returns "" for an empty
// matrix. Presentation uses this to highlight the current runner column.
func (m Matrix) LatestRunnerVersion() string {
	latest := ""

	for _, versions := range m {
		for _, cells := range versions {
			for cell := range cells {
				if latest == "" || compareVersions(cell.RunnerVersion, latest) > 0 {
					latest = cell.RunnerVersion
				}
			}
		}
	}

	return latest
}

// String renders a cell key as "env/runner", the form used in log lines.
func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s", k.Env, k.RunnerVersion)
}

// compareVersions orders two version strings loosely: proper semantic-ish
// comparison when both parse, lexicographic fallback otherwise. Versions are
// opaque for identity; this ordering exists only for display.
func compareVersions(a, b string) int {
	av, aerr := goversion.NewVersion(a)
	bv, berr := goversion.NewVersion(b)

	if aerr == nil && berr == nil {
		return av.Compare(bv)
	}

	return strings.Compare(a, b)
}
