// Package main provides the database migration CLI tool for plugtrack.
//
// Migrations are embedded in the binary, supporting up/down/status/version
// commands for zero-config deployment.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/plugtrack-io/plugtrack/migrations"
)

// Version information
const (
	version = "1.0.0"
	name    = "migrator"
)

func main() {
	// Command line flags
	var (
		configHelp  = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	// Handle help flag or no arguments
	if *configHelp || len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	// Parse command from arguments
	command := os.Args[1]

	// validate inspects the embedded migrations only, no database needed
	if command == "validate" {
		if err := validateEmbedded(); err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		os.Exit(0)
	}

	// Load configuration from environment
	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create migration runner
	runner, err := NewMigrationRunner(config)
	if err != nil {
		log.Fatalf("Failed to create migration runner: %v", err)
	}
	defer runner.Close()

	// Execute command
	if err := executeCommand(command, runner); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

// executeCommand runs the specified migration command
func executeCommand(command string, runner MigrationRunner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		fmt.Print("WARNING: This will drop all tables. Are you sure? (y/N): ")
		var response string
		fmt.Scanln(&response)
		if response == "y" || response == "Y" {
			return runner.Drop()
		}
		fmt.Println("Operation cancelled.")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// validateEmbedded checks the embedded migration files for naming and
// pairing problems and lists them. Useful in CI before an image is shipped.
func validateEmbedded() error {
	if err := migrations.Validate(); err != nil {
		return err
	}

	files, err := migrations.List()
	if err != nil {
		return err
	}

	fmt.Printf("Embedded migrations OK (%d files):\n", len(files))
	for _, filename := range files {
		fmt.Printf("  %s\n", filename)
	}

	return nil
}

// printUsage displays usage information
func printUsage() {
	fmt.Printf(`%s v%s - Database Migration Tool for plugtrack

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Rollback the last migration
    status  Show migration status
    version Show current migration version
    validate Check embedded migration files (no database needed)
    drop    Drop all tables (requires confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    DATABASE_URL    PostgreSQL connection string (REQUIRED)

    MIGRATION_TABLE Name of migration tracking table
                   (default: schema_migrations)

EXAMPLES:
    %s up                    # Apply all pending migrations
    %s status               # Show current migration status
    %s down                 # Rollback last migration
    %s --version           # Show version information

Migrations are embedded in the binary, so no migration files are needed on disk.
`, name, version, name, name, name, name, name)
}
