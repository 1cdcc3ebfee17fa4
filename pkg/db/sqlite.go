package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/pkg/db/migrations"
	"github.com/mattn/go-sqlite3"
)

// busyTimeoutMS is how long SQLite waits on a locked database before failing
const busyTimeoutMS = 5000

// DSN builds the connection string used for every store file. Transactions
// take the write lock on BEGIN so a read-then-write inside one never upgrades.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate&_foreign_keys=on&_journal_mode=WAL", path, busyTimeoutMS)
}

// Open opens (creating if needed) the SQLite database at path and applies
// the embedded migrations
func Open(ctx context.Context, path string, log *logging.Logger) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := migrations.NewMigrator(conn, migrations.Embedded(), log).MigrateUp(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return conn, nil
}

// IsBusy reports whether err is SQLite refusing a write because another
// connection holds the lock
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY conflict
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsCheckViolation reports whether err is a CHECK constraint failure
func IsCheckViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	return false
}
