package aliasing

import (
	"log/slog"
	"strings"
)

// Resolver folds reported environment labels into their canonical form.
// Thread-safe for concurrent use (immutable after construction).
//
// Lookup is case-insensitive and whitespace-trimmed so "Python3.11 " and
// "python3.11" hit the same alias. Unknown labels pass through unchanged;
// aliasing never rejects a record.
type Resolver struct {
	aliases map[string]string
}

// NewResolver creates a resolver from config with validation.
//
// Aliases with an empty key or empty canonical label are skipped with a
// warning. If config is nil or has no aliases, returns a no-op resolver
// (passthrough).
func NewResolver(cfg *Config) *Resolver {
	if cfg == nil || len(cfg.EnvAliases) == 0 {
		return &Resolver{
			aliases: map[string]string{},
		}
	}

	aliases := make(map[string]string, len(cfg.EnvAliases))

	for alias, canonical := range cfg.EnvAliases {
		key := normalizeLabel(alias)
		value := strings.TrimSpace(canonical)

		if key == "" {
			slog.Warn("Skipping alias with empty label")

			continue
		}

		if value == "" {
			slog.Warn("Skipping alias with empty canonical label",
				slog.String("alias", alias))

			continue
		}

		aliases[key] = value

		slog.Debug("Registered environment alias",
			slog.String("alias", key),
			slog.String("canonical", value))
	}

	return &Resolver{
		aliases: aliases,
	}
}

// AliasCount returns the number of registered aliases.
func (r *Resolver) AliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases)
}

// Resolve maps a reported environment label to its canonical form.
// Returns the canonical label if an alias matches, otherwise returns the
// original label unchanged. Implements ingestion.EnvResolver.
func (r *Resolver) Resolve(env string) string {
	if r == nil || len(r.aliases) == 0 || env == "" {
		return env
	}

	if canonical, ok := r.aliases[normalizeLabel(env)]; ok {
		return canonical
	}

	return env
}

// normalizeLabel lowercases and trims a label for alias lookup.
func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
