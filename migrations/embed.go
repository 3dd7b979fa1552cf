// Package migrations embeds the SQL schema migrations for the plugtrack
// service and validates them at startup.
//
// Migrations are embedded at build time using go:embed for zero-config
// deployment: the migrator binary and the test helpers read the same
// filesystem, so containers need no external migration files.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// Migration filename standard: 001_migration_name.up.sql or
// 001_migration_name.down.sql. Invalid filenames are rejected to enforce
// consistency and prevent operational mistakes.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info contains parsed information about a migration file.
type Info struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

// FS returns the embedded filesystem containing all migration files.
func FS() fs.FS {
	return embeddedMigrations
}

// List returns all embedded migration files that conform to the naming
// standard, in lexicographic (= sequence) order.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Parse extracts sequence, name and direction from a migration filename.
func Parse(filename string) (*Info, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return nil, fmt.Errorf("migration filename %q does not match NNN_name.(up|down).sql", filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid migration sequence in %q: %w", filename, err)
	}

	return &Info{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// Validate checks the embedded migration set: every filename conforms to the
// standard, every up migration has a matching down migration, and sequences
// are contiguous starting at 1. Run at migrator startup so a broken set
// fails fast instead of half-applying.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migrations found")
	}

	ups := make(map[int]string)
	downs := make(map[int]string)

	for _, filename := range files {
		info, err := Parse(filename)
		if err != nil {
			return err
		}

		switch info.Direction {
		case "up":
			ups[info.Sequence] = info.Name
		case "down":
			downs[info.Sequence] = info.Name
		}
	}

	for sequence, name := range ups {
		downName, ok := downs[sequence]
		if !ok {
			return fmt.Errorf("migration %03d_%s has no down migration", sequence, name)
		}

		if downName != name {
			return fmt.Errorf("migration pair %03d has mismatched names: %q vs %q", sequence, name, downName)
		}
	}

	for sequence := range downs {
		if _, ok := ups[sequence]; !ok {
			return fmt.Errorf("down migration %03d has no up migration", sequence)
		}
	}

	for i := 1; i <= len(ups); i++ {
		if _, ok := ups[i]; !ok {
			return fmt.Errorf("migration sequence is not contiguous: missing %03d", i)
		}
	}

	return nil
}
