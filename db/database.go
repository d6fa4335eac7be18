// Package db stores the job history audit log in SQLite.
//
// The Database organism composes:
//   - SQLite connection with WAL mode (connection.go)
//   - embedded schema migrations (migrate.go)
//   - AsyncWriter for non-blocking inserts (async_write.go)
//
// Only finished jobs are recorded. Nothing here is read back into the
// lifecycle controller; a restart always starts from an idle session.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("db: database connection is closed")

// Database owns the history database connection.
//
// Usage:
//
//	database, err := db.Open("data/history.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer database.Close()
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// DatabaseConfig holds configuration for the Database organism.
type DatabaseConfig struct {
	// Path is the database file path
	Path string
	// SkipMigrations leaves the schema untouched (tests that migrate manually)
	SkipMigrations bool
	// ConnectionConfig allows customizing the SQLite connection
	ConnectionConfig *ConnectionConfig
}

// Open creates the parent directory if needed, applies pending migrations
// and opens the connection.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DatabaseConfig{Path: path})
}

// OpenWithConfig is Open with explicit configuration.
func OpenWithConfig(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("db: database path is required")
	}

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("db: failed to create database directory %s: %w", dir, err)
		}
	}

	if !config.SkipMigrations {
		if err := MigrateUp(config.Path); err != nil {
			return nil, err
		}
	}

	connConfig := DefaultConnectionConfig(config.Path)
	if config.ConnectionConfig != nil {
		connConfig = *config.ConnectionConfig
		connConfig.Path = config.Path
	}

	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, err
	}

	return &Database{db: conn, path: config.Path}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the connection. It is safe to call more than once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("db: failed to close database: %w", err)
	}
	d.db = nil
	return nil
}

// Ping verifies the connection is alive. Used by the health endpoint.
func (d *Database) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return ErrClosed
	}
	return d.db.PingContext(ctx)
}

// ExecContext runs a statement that returns no rows.
func (d *Database) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query that returns rows.
func (d *Database) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db.QueryContext(ctx, query, args...)
}

// queryScalar scans the single column of a single row into dest.
func (d *Database) queryScalar(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return ErrClosed
	}
	return d.db.QueryRowContext(ctx, query, args...).Scan(dest)
}
