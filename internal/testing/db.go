// Package testing provides testing utilities and helpers for the autotrader project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/autotrader/internal/database"
)

// NewTestDB creates a temporary-file SQLite database with automatic schema migration.
// Returns the database instance and an idempotent cleanup function.
//
// Supported schema names:
//   - "ledger" - applies ledger_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()
	return NewTestDBWithDriver(t, name, database.DriverModernc)
}

// NewTestDBWithDriver is NewTestDB with an explicit driver name
func NewTestDBWithDriver(t *testing.T, name, driver string) (*database.DB, func()) {
	t.Helper()

	// A file (not :memory:) so every pooled connection sees the same database
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileLedger,
		Name:    name,
		Driver:  driver,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	}
}
