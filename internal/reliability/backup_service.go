// Package reliability provides ledger backups and database maintenance.
package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/autotrader/internal/database"
	"github.com/aristath/autotrader/internal/events"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
)

const (
	backupPrefix     = "ledger-backup-"
	backupSuffix     = ".db.gz"
	backupTimeLayout = "2006-01-02-150405"

	// Newest backups kept regardless of age
	minBackupsToKeep = 3
)

// BackupInfo describes one stored ledger backup
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum,omitempty"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots the ledger with VACUUM INTO, verifies the copy,
// gzips it and hands it to an ObjectStore.
type BackupService struct {
	db            *database.DB
	store         ObjectStore
	stagingDir    string
	retentionDays int
	events        *events.Manager
	now           func() time.Time
	log           zerolog.Logger
}

// NewBackupService creates a new backup service. retentionDays 0 keeps every backup.
func NewBackupService(
	db *database.DB,
	store ObjectStore,
	stagingDir string,
	retentionDays int,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		db:            db,
		store:         store,
		stagingDir:    stagingDir,
		retentionDays: retentionDays,
		events:        eventManager,
		now:           time.Now,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// Run creates a backup and then rotates old ones. Rotation failures are logged only.
func (s *BackupService) Run(ctx context.Context) error {
	if _, err := s.CreateAndUpload(ctx); err != nil {
		return err
	}
	if _, err := s.RotateOldBackups(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate backups")
	}
	return nil
}

// CreateAndUpload writes one verified, compressed backup to the store
func (s *BackupService) CreateAndUpload(ctx context.Context) (*BackupInfo, error) {
	timer := utils.NewTimer("ledger_backup", s.log)
	timestamp := s.now().UTC()

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	snapshotPath := filepath.Join(s.stagingDir, "ledger-"+timestamp.Format(backupTimeLayout)+".db")
	defer os.Remove(snapshotPath)

	if err := s.db.BackupTo(ctx, snapshotPath); err != nil {
		return nil, err
	}
	if err := verifyBackup(ctx, s.db.Driver(), snapshotPath); err != nil {
		return nil, fmt.Errorf("backup verification failed: %w", err)
	}

	key := backupPrefix + timestamp.Format(backupTimeLayout) + backupSuffix
	archivePath := filepath.Join(s.stagingDir, key)
	defer os.Remove(archivePath)

	checksum, err := compressFile(snapshotPath, archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to compress backup: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	stat, err := archive.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, key, archive); err != nil {
		return nil, err
	}

	info := &BackupInfo{
		Key:       key,
		Timestamp: timestamp,
		SizeBytes: stat.Size(),
		Checksum:  checksum,
	}

	duration := timer.Stop()
	s.log.Info().
		Str("key", key).
		Int64("size_bytes", info.SizeBytes).
		Dur("duration_ms", duration).
		Msg("Ledger backup completed")

	if s.events != nil {
		s.events.EmitTyped("backup", &events.BackupCompletedData{Key: key, SizeBytes: info.SizeBytes})
	}
	return info, nil
}

// ListBackups returns stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, backupSuffix) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), backupSuffix)
		timestamp, err := time.Parse(backupTimeLayout, raw)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes backups older than the retention period, always
// keeping the newest few. Returns how many were deleted.
func (s *BackupService) RotateOldBackups(ctx context.Context) (int, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation completed")
	}
	return deleted, nil
}

// verifyBackup opens the copy with the same driver and runs an integrity check
func verifyBackup(ctx context.Context, driver, path string) error {
	conn, err := sql.Open(driver, path)
	if err != nil {
		return err
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned %q", result)
	}
	return nil
}

// compressFile gzips src into dst and returns the sha256 of dst
func compressFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hash))
	gz.Name = "ledger.db"
	if _, err := io.Copy(gz, in); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
