package di

import (
	"fmt"

	"github.com/aristath/autotrader/internal/config"
	"github.com/aristath/autotrader/internal/reliability"
	"github.com/aristath/autotrader/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers every background job.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Jobs.MarkToMarketSchedule, scheduler.NewMarkToMarketJob(container.MarkToMarket, log)},
		{cfg.Jobs.PendingRetrySchedule, scheduler.NewPendingOrdersJob(container.Trading, log)},
		{cfg.Jobs.WALCheckSchedule, scheduler.NewCheckWALCheckpointsJob(container.LedgerDB, log)},
		{cfg.Jobs.MaintenanceSchedule, reliability.NewLedgerMaintenanceJob(container.LedgerDB, cfg.DataDir, log)},
		{cfg.Backup.Schedule, scheduler.NewBackupJob(container.BackupService)},
	}

	for _, j := range jobs {
		if j.schedule == "" {
			log.Info().Str("job", j.job.Name()).Msg("Job disabled (empty schedule)")
			continue
		}
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register %s: %w", j.job.Name(), err)
		}
	}

	container.Scheduler = sched
	return nil
}
