package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/pkg/db"
	"github.com/fadedpez/royalcharge/pkg/db/migrations"
	_ "github.com/mattn/go-sqlite3"
)

var log = logging.NewLogger(logging.INFO, false).Component("migration")

func main() {
	// Define command-line flags
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)

	// Create command options
	migrationsDir := createCmd.String("dir", filepath.Join("pkg", "db", "migrations", "sql"), "Directory to store migrations")

	// Migrate command options
	dbPath := migrateCmd.String("db", filepath.Join("data", "royalcharge.db"), "Path to SQLite database")
	migrateDir := migrateCmd.String("dir", "", "Directory containing migrations (defaults to the embedded set)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		if createCmd.NArg() < 1 {
			fmt.Println("Error: Missing migration description")
			createCmd.Usage()
			os.Exit(1)
		}
		createNewMigration(*migrationsDir, createCmd.Arg(0))

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		applyMigrations(*dbPath, *migrateDir)

	case "help":
		printUsage()

	default:
		fmt.Printf("Error: Unknown command '%s'\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/migration create DESCRIPTION  - Create a new migration")
	fmt.Println("  go run ./cmd/migration migrate             - Apply pending migrations")
	fmt.Println("  go run ./cmd/migration help                - Show this help")
	fmt.Println("\nExamples:")
	fmt.Println("  go run ./cmd/migration create \"add order notes\"")
	fmt.Println("  go run ./cmd/migration migrate -db data/royalcharge.db")
}

func createNewMigration(dir, description string) {
	filePath, err := migrations.CreateMigration(dir, description)
	if err != nil {
		log.WithError(err).Fatal("Error creating migration")
	}

	addSQLiteExamples(filePath)

	log.WithField("file", filePath).Info("Created migration file, edit it to add your schema changes")
}

func addSQLiteExamples(filePath string) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		log.WithError(err).Fatal("Error reading migration file")
	}

	examples := `
-- Money columns hold integer cents.

-- CREATE TABLE IF NOT EXISTS table_name (
--   id TEXT PRIMARY KEY,
--   amount_cents INTEGER NOT NULL DEFAULT 0 CHECK (amount_cents >= 0),
--   created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
-- );

-- ALTER TABLE orders ADD COLUMN new_column TEXT;

-- CREATE INDEX IF NOT EXISTS idx_table_column ON table_name(column_name);

-- Your migration SQL goes below this line:

`

	if err := os.WriteFile(filePath, append(content, examples...), 0644); err != nil {
		log.WithError(err).Fatal("Error writing to migration file")
	}
}

func applyMigrations(dbPath, migrationsDir string) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.WithError(err).Fatal("Error creating database directory")
	}

	conn, err := sql.Open("sqlite3", db.DSN(dbPath))
	if err != nil {
		log.WithError(err).Fatal("Error opening database")
	}
	defer conn.Close()

	var source fs.FS = migrations.Embedded()
	if migrationsDir != "" {
		source = os.DirFS(migrationsDir)
	}

	count, err := migrations.NewMigrator(conn, source, log).MigrateUp(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Error applying migrations")
	}

	log.WithField("applied", count).Info("Migrations applied successfully")
}
