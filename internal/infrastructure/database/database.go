package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

const (
	dirMode  = 0o750
	fileMode = 0o600

	openPingTimeout = 5 * time.Second
	connMaxLifetime = time.Hour
	connMaxIdleTime = 30 * time.Minute
)

// ErrCorrupt is returned by IntegrityCheck when SQLite reports damage.
var ErrCorrupt = errors.New("database: integrity check failed")

// DB is a single-writer connection to one SQLite file.
type DB struct {
	*sql.DB
	path string
}

// Config maps to the database section of config.yaml.
type Config struct {
	// Path of the SQLite file. Missing parent directories are created.
	Path string

	// WALMode enables write-ahead logging with synchronous=NORMAL.
	WALMode bool

	// BusyTimeout is how long a statement waits for a lock, in seconds.
	BusyTimeout int
}

// dsn builds the go-sqlite3 connection string for cfg.
// See https://github.com/mattn/go-sqlite3#connection-string
func (cfg Config) dsn() string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	q.Set("_foreign_keys", "on")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at cfg.Path, verifies it
// answers a ping within ctx and restricts the file to its owner.
//
// Parameters:
//   - ctx: Bounds the connectivity check
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Open database
//   - error: If the directory, driver or ping fails
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: SQLite has a single writer and the UUID store is tiny.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, openPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	//nolint:errcheck // the file appears on first write
	os.Chmod(cfg.Path, fileMode)

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the connection. It is a no-op on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// IntegrityCheck runs PRAGMA quick_check and reports ErrCorrupt when the
// file is damaged. A file that is not a database at all surfaces as the
// driver error from the query.
func (db *DB) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrCorrupt, result)
	}
	return nil
}

// Remove deletes a database file together with its WAL and shared-memory
// companions. Missing files are not an error.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

// ExecContext wraps sql.DB.ExecContext, annotating errors.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return res, nil
}

// BeginTx wraps sql.DB.BeginTx, annotating errors. Callers defer
// tx.Rollback, which is a no-op after Commit.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
