// Package catalog provides read-only access to the plugin catalog produced
// by the discovery collaborator.
//
// The discovery job periodically searches the package index for plugin names
// and writes an index file of (name, latest version, description) triples.
// The core only reads that file: the catalog enriches display descriptions
// and is listed through the API, but it never gates ingestion or query.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/plugtrack-io/plugtrack/internal/config"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

// DefaultIndexPath is the default location of the discovery job's output.
const DefaultIndexPath = "index.json"

// IndexPathEnvVar is the environment variable overriding the index location.
const IndexPathEnvVar = "PLUGTRACK_INDEX_PATH"

// Plugin is one catalog entry: a known plugin with its latest version and
// summary line.
type Plugin struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Catalog holds the loaded plugin index. Safe for concurrent use; Reload
// swaps the whole index atomically.
type Catalog struct {
	path    string
	logger  *slog.Logger
	mutex   sync.RWMutex
	plugins map[string]Plugin // keyed by normalized name
}

// Load reads the plugin index from the given path.
//
// Behavior:
//   - Missing file yields an empty catalog (not an error) - the catalog is
//     optional enrichment, and the discovery job may not have run yet
//   - Malformed JSON yields an empty catalog + a warning (graceful
//     degradation; ingestion and query must keep working)
func Load(path string, logger *slog.Logger) *Catalog {
	c := &Catalog{
		path:    path,
		logger:  logger,
		plugins: make(map[string]Plugin),
	}

	if err := c.Reload(); err != nil {
		logger.Warn("Failed to load plugin index, continuing with empty catalog",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	return c
}

// LoadFromEnv loads the catalog from the path in PLUGTRACK_INDEX_PATH,
// falling back to "index.json" in the working directory.
func LoadFromEnv(logger *slog.Logger) *Catalog {
	return Load(config.GetEnvStr(IndexPathEnvVar, DefaultIndexPath), logger)
}

// Reload re-reads the index file and swaps the in-memory catalog atomically.
// A missing file empties the catalog without error; a read or parse failure
// returns an error and leaves the previous contents in place.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.mutex.Lock()
			c.plugins = make(map[string]Plugin)
			c.mutex.Unlock()

			return nil
		}

		return fmt.Errorf("read plugin index: %w", err)
	}

	var entries []Plugin
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse plugin index: %w", err)
	}

	plugins := make(map[string]Plugin, len(entries))
	for _, entry := range entries {
		plugins[ingestion.NormalizePluginName(entry.Name)] = entry
	}

	c.mutex.Lock()
	c.plugins = plugins
	c.mutex.Unlock()

	c.logger.Info("Plugin index loaded",
		slog.String("path", c.path),
		slog.Int("plugins", len(plugins)),
	)

	return nil
}

// Describe returns the catalog description for a plugin, matching on the
// normalized name. Implements query.DescriptionSource.
func (c *Catalog) Describe(pluginName string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, ok := c.plugins[ingestion.NormalizePluginName(pluginName)]
	if !ok || entry.Description == "" {
		return "", false
	}

	return entry.Description, true
}

// Plugins returns all catalog entries sorted by name.
func (c *Catalog) Plugins() []Plugin {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entries := make([]Plugin, 0, len(c.plugins))
	for _, entry := range c.plugins {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return ingestion.NormalizePluginName(entries[i].Name) < ingestion.NormalizePluginName(entries[j].Name)
	})

	return entries
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.plugins)
}
