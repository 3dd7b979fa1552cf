// Package aliasing provides interpreter environment alias resolution.
//
// Executors in different CI fleets report the same interpreter under
// different labels ("python3.11", "cpython-3.11", "py3.11"), splitting one
// logical environment column into several. This package loads an optional
// alias map and folds reported labels into their canonical form before
// records are keyed.
package aliasing

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plugtrack-io/plugtrack/internal/config"
)

// Config holds environment alias configuration loaded from .plugtrack.yaml.
type Config struct {
	// EnvAliases maps reported environment labels to canonical labels.
	// Key is the alias (executor-specific), value is the canonical label.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	EnvAliases map[string]string `yaml:"env_aliases"`
}

// DefaultConfigPath is the default location for the plugtrack configuration file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultConfigPath = ".plugtrack.yaml"

// ConfigPathEnvVar is the environment variable name for custom config path.
const ConfigPathEnvVar = "PLUGTRACK_CONFIG_PATH"

// LoadConfig loads alias configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if file doesn't exist - aliases are optional
//   - Returns empty config + logs warning if YAML is invalid (graceful degradation)
//   - Returns populated config on success
//
// This graceful degradation ensures the server can start even without aliases
// configured, as environment aliasing is an optional feature.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		EnvAliases: make(map[string]string),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Missing file is OK - aliases are optional
			slog.Debug("Config file not found, continuing without aliases",
				slog.String("path", path))

			return cfg, nil
		}

		// Other read errors (permissions, etc.) - log warning and continue
		slog.Warn("Failed to read config file, continuing without aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	// Empty file is valid - just no aliases
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Invalid YAML - log warning and continue with empty config
		slog.Warn("Failed to parse config file, continuing without aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{EnvAliases: make(map[string]string)}, nil
	}

	// Ensure map is initialized even if YAML had nil/empty section
	if cfg.EnvAliases == nil {
		cfg.EnvAliases = make(map[string]string)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from the path specified in PLUGTRACK_CONFIG_PATH
// environment variable. Falls back to ".plugtrack.yaml" in current directory if not set.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}
