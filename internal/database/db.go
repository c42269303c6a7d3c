// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go SQLite driver, registered as "sqlite"
)

//go:embed schemas/*.sql
var schemaFS embed.FS

// Driver names as registered with database/sql
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// busyTimeoutMS is how long a connection waits on a held write lock before SQLITE_BUSY
const busyTimeoutMS = 5000

// DatabaseProfile defines different configuration profiles for databases
type DatabaseProfile string

const (
	// ProfileLedger - Maximum safety for the money ledger
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileStandard - Balanced configuration
	ProfileStandard DatabaseProfile = "standard"
)

// DB wraps the database connection with production-grade configuration
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string
	driver  string
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string // Friendly name, also selects the schema file ("ledger")
	Driver  string // DriverModernc (default) or DriverMattn
}

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// New creates a new database connection with production-grade configuration
func New(cfg Config) (*DB, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	cfg.Path = absPath

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}

	connStr, err := buildConnectionString(cfg.Driver, cfg.Path, cfg.Profile)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(cfg.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		name:    cfg.Name,
		driver:  cfg.Driver,
	}, nil
}

// buildConnectionString creates the DSN with profile-specific PRAGMAs in the driver's dialect
func buildConnectionString(driver, path string, profile DatabaseProfile) (string, error) {
	synchronous := "NORMAL"
	if profile == ProfileLedger {
		// Fsync after every write
		synchronous = "FULL"
	}

	switch driver {
	case DriverModernc:
		connStr := path + "?_pragma=journal_mode(WAL)"
		connStr += "&_pragma=synchronous(" + synchronous + ")"
		connStr += fmt.Sprintf("&_pragma=busy_timeout(%d)", busyTimeoutMS)
		connStr += "&_pragma=foreign_keys(1)"
		connStr += "&_pragma=wal_autocheckpoint(1000)"
		return connStr, nil
	case DriverMattn:
		connStr := "file:" + path + "?_journal_mode=WAL"
		connStr += "&_synchronous=" + synchronous
		connStr += fmt.Sprintf("&_busy_timeout=%d", busyTimeoutMS)
		connStr += "&_foreign_keys=1"
		return connStr, nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// configureConnectionPool sets up connection pool for long-term operation
func configureConnectionPool(conn *sql.DB) {
	conn.SetMaxOpenConns(16)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Driver returns the registered driver name in use
func (db *DB) Driver() string {
	return db.driver
}

// Migrate applies the embedded schema for this database.
// Schemas are idempotent (IF NOT EXISTS) so Migrate runs on every start.
func (db *DB) Migrate() error {
	schemaFiles := map[string]string{
		"ledger": "schemas/ledger_schema.sql",
	}

	schemaFile, ok := schemaFiles[db.name]
	if !ok {
		return nil
	}

	content, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", schemaFile, err)
	}

	return WithTransaction(db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute schema %s for %s: %w", schemaFile, db.name, err)
		}
		return nil
	})
}

// WithTransaction executes a function within a database transaction.
// It handles begin, commit, rollback, panic recovery, and error wrapping automatically.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}

// WithImmediateTx runs fn inside BEGIN IMMEDIATE on a dedicated connection.
// The write lock is taken before fn performs its first read, so concurrent
// callers are serialized for the whole read-decide-write sequence.
// Waiting writers queue behind busy_timeout; a lock that is still held after
// that surfaces as a busy error (see IsBusy).
func (db *DB) WithImmediateTx(ctx context.Context, fn func(Querier) error) (err error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Rollback and commit must run even if ctx was cancelled mid-transaction,
	// otherwise the pooled connection would keep an open transaction.
	finishCtx := context.WithoutCancel(ctx)

	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.ExecContext(finishCtx, "ROLLBACK")
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			if _, rollbackErr := conn.ExecContext(finishCtx, "ROLLBACK"); rollbackErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rollbackErr)
			}
			return
		}
		if _, commitErr := conn.ExecContext(finishCtx, "COMMIT"); commitErr != nil {
			_, _ = conn.ExecContext(finishCtx, "ROLLBACK")
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(conn)
	return err
}

// WithReadTx runs fn in a deferred transaction that is always rolled back.
// Under WAL every query inside fn observes the same committed snapshot.
func (db *DB) WithReadTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// HealthCheck pings the database and runs an integrity check
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var integrityResult string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&integrityResult); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if integrityResult != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, integrityResult)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint to prevent bloat
func (db *DB) WALCheckpoint(ctx context.Context, mode string) error {
	// Modes: PASSIVE, FULL, RESTART, TRUNCATE
	mode = strings.ToUpper(mode)
	switch mode {
	case "":
		mode = "TRUNCATE"
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
	default:
		return fmt.Errorf("invalid WAL checkpoint mode %q", mode)
	}

	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO
func (db *DB) BackupTo(ctx context.Context, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite an existing file
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale backup: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("failed to back up %s: %w", db.name, err)
	}
	return nil
}

// Stats returns database statistics
type Stats struct {
	SizeBytes     int64 `json:"size_bytes"`
	WALSizeBytes  int64 `json:"wal_size_bytes"`
	PageCount     int64 `json:"page_count"`
	PageSize      int64 `json:"page_size"`
	FreelistCount int64 `json:"freelist_count"`
}

// GetStats retrieves database statistics
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if fileInfo, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}
	if fileInfo, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = fileInfo.Size()
	}

	pragmas := []struct {
		name string
		dest *int64
	}{
		{"page_count", &stats.PageCount},
		{"page_size", &stats.PageSize},
		{"freelist_count", &stats.FreelistCount},
	}
	for _, p := range pragmas {
		if err := db.conn.QueryRowContext(ctx, "PRAGMA "+p.name).Scan(p.dest); err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", p.name, err)
		}
	}

	return stats, nil
}
