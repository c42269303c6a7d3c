package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/autotrader/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	criticalFreeBytes = 500 << 20
	lowFreeBytes      = 5 << 30
)

// LedgerMaintenanceJob checks ledger health, truncates the WAL and watches free disk space
type LedgerMaintenanceJob struct {
	db      *database.DB
	dataDir string
	timeout time.Duration
	log     zerolog.Logger
}

// NewLedgerMaintenanceJob creates a new ledger maintenance job
func NewLedgerMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *LedgerMaintenanceJob {
	return &LedgerMaintenanceJob{
		db:      db,
		dataDir: dataDir,
		timeout: 5 * time.Minute,
		log:     log.With().Str("job", "ledger_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *LedgerMaintenanceJob) Name() string {
	return "ledger_maintenance"
}

// Run executes the maintenance steps. A failed integrity check or critically
// low disk space fails the job; a failed checkpoint is only logged.
func (j *LedgerMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	startTime := time.Now()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: ledger integrity check failed")
		return err
	}

	if err := j.db.WALCheckpoint(ctx, "TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if stats, err := j.db.GetStats(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Failed to read ledger stats")
	} else {
		j.log.Info().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Int64("freelist_count", stats.FreelistCount).
			Dur("duration_ms", time.Since(startTime)).
			Msg("Ledger maintenance completed")
	}
	return nil
}

func (j *LedgerMaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to stat filesystem")
		return nil
	}

	switch {
	case usage.Free < criticalFreeBytes:
		j.log.Error().Uint64("free_bytes", usage.Free).Msg("CRITICAL: insufficient disk space")
		return fmt.Errorf("only %d bytes free under %s", usage.Free, j.dataDir)
	case usage.Free < lowFreeBytes:
		j.log.Warn().Uint64("free_bytes", usage.Free).Msg("Disk space running low")
	}
	return nil
}
