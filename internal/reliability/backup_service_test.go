package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/autotrader/internal/events"
	testingpkg "github.com/aristath/autotrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService_CreateAndUpload(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	_, err := db.Conn().Exec(`INSERT INTO market_prices (symbol, price, as_of, updated_at) VALUES ('AAPL', '150', 1, 1)`)
	require.NoError(t, err)

	tempDir := t.TempDir()
	store, err := NewDirStore(filepath.Join(tempDir, "backups"))
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	bus := events.NewBus()
	var completed []*events.Event
	bus.Subscribe(events.BackupCompleted, func(e *events.Event) { completed = append(completed, e) })

	service := NewBackupService(db, store, filepath.Join(tempDir, "staging"), 30, events.NewManager(bus, log), log)
	service.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	info, err := service.CreateAndUpload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ledger-backup-2026-03-01-120000.db.gz", info.Key)
	assert.True(t, strings.HasPrefix(info.Checksum, "sha256:"))
	assert.Positive(t, info.SizeBytes)
	require.Len(t, completed, 1)
	assert.Equal(t, info.Key, completed[0].Data["key"])

	// The archive decompresses into a healthy ledger copy
	archive, err := os.Open(filepath.Join(tempDir, "backups", info.Key))
	require.NoError(t, err)
	defer archive.Close()
	gz, err := gzip.NewReader(archive)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	restored := filepath.Join(tempDir, "restored.db")
	require.NoError(t, os.WriteFile(restored, raw, 0644))
	conn, err := sql.Open(db.Driver(), restored)
	require.NoError(t, err)
	defer conn.Close()

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM market_prices").Scan(&count))
	assert.Equal(t, 1, count)

	staged, err := os.ReadDir(filepath.Join(tempDir, "staging"))
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestBackupService_RotateOldBackups(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for _, age := range []int{0, 1, 40, 50, 60} {
		key := backupPrefix + now.AddDate(0, 0, -age).Format(backupTimeLayout) + backupSuffix
		require.NoError(t, store.Upload(ctx, key, bytes.NewReader([]byte("x"))))
	}
	require.NoError(t, store.Upload(ctx, backupPrefix+"garbage"+backupSuffix, bytes.NewReader([]byte("x"))))

	service := NewBackupService(db, store, t.TempDir(), 30, nil, zerolog.New(nil).Level(zerolog.Disabled))
	service.now = func() time.Time { return now }

	deleted, err := service.RotateOldBackups(ctx)
	require.NoError(t, err)
	// 40 days is within the newest three and survives
	assert.Equal(t, 2, deleted)

	backups, err := service.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Equal(t, int64(0), backups[0].AgeHours)
	assert.Equal(t, int64(40*24), backups[2].AgeHours)
}

func TestBackupService_RetentionDisabled(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	service := NewBackupService(db, store, t.TempDir(), 0, nil, zerolog.New(nil).Level(zerolog.Disabled))
	deleted, err := service.RotateOldBackups(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestLedgerMaintenanceJob_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	job := NewLedgerMaintenanceJob(db, t.TempDir(), zerolog.New(nil).Level(zerolog.Disabled))
	assert.Equal(t, "ledger_maintenance", job.Name())
	assert.NoError(t, job.Run())
}
