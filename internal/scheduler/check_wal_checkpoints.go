package scheduler

import (
	"github.com/aristath/autotrader/internal/database"
	"github.com/rs/zerolog"
)

// walWarnFrames is the WAL size, in frames, above which a warning is logged
const walWarnFrames = 1000

// CheckWALCheckpointsJob runs a passive WAL checkpoint on the ledger and reports its size
type CheckWALCheckpointsJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob
func NewCheckWALCheckpointsJob(db *database.DB, log zerolog.Logger) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		db:  db,
		log: log.With().Str("job", "check_wal_checkpoints").Logger(),
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the check
func (j *CheckWALCheckpointsJob) Run() error {
	if j.db == nil {
		return nil
	}

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	err := j.db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Str("database", j.db.Name()).Msg("Failed to check WAL checkpoint")
		return nil
	}

	if frames > walWarnFrames {
		j.log.Warn().
			Str("database", j.db.Name()).
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().
			Str("database", j.db.Name()).
			Int("wal_frames", frames).
			Msg("WAL checkpoint status OK")
	}
	return nil
}
