package scheduler

import (
	"context"
	"time"

	"github.com/aristath/autotrader/internal/modules/portfolio"
	"github.com/aristath/autotrader/internal/modules/trading"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
)

const defaultJobTimeout = 2 * time.Minute

// MarkToMarketRunner revalues every open position
type MarkToMarketRunner interface {
	Run(ctx context.Context) (*portfolio.RevalueResult, error)
}

// PendingProcessor retries PENDING orders
type PendingProcessor interface {
	ProcessPending(ctx context.Context, symbol string) (trading.PendingSummary, error)
}

// BackupRunner creates and rotates ledger backups
type BackupRunner interface {
	Run(ctx context.Context) error
}

// MarkToMarketJob refreshes position prices and appends a snapshot
type MarkToMarketJob struct {
	mtm     MarkToMarketRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewMarkToMarketJob creates a new mark-to-market job
func NewMarkToMarketJob(mtm MarkToMarketRunner, log zerolog.Logger) *MarkToMarketJob {
	return &MarkToMarketJob{
		mtm:     mtm,
		timeout: defaultJobTimeout,
		log:     log.With().Str("job", "mark_to_market").Logger(),
	}
}

// Name returns the job name
func (j *MarkToMarketJob) Name() string {
	return "mark_to_market"
}

// Run executes the mark-to-market pass
func (j *MarkToMarketJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	timer := utils.NewTimer("mark_to_market", j.log)
	result, err := j.mtm.Run(ctx)
	if err != nil {
		return err
	}

	timer.StopWithContext(map[string]interface{}{
		"updated": len(result.Updated),
		"failed":  len(result.Failed),
	})
	for symbol, reason := range result.Failed {
		j.log.Warn().Str("symbol", symbol).Str("reason", reason).Msg("Position not repriced")
	}
	return nil
}

// PendingOrdersJob retries every PENDING order against current prices
type PendingOrdersJob struct {
	orders  PendingProcessor
	timeout time.Duration
	log     zerolog.Logger
}

// NewPendingOrdersJob creates a new pending-order retry job
func NewPendingOrdersJob(orders PendingProcessor, log zerolog.Logger) *PendingOrdersJob {
	return &PendingOrdersJob{
		orders:  orders,
		timeout: defaultJobTimeout,
		log:     log.With().Str("job", "pending_orders").Logger(),
	}
}

// Name returns the job name
func (j *PendingOrdersJob) Name() string {
	return "pending_orders"
}

// Run executes one retry pass
func (j *PendingOrdersJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	defer utils.OperationTimer("pending_orders", j.log)()
	summary, err := j.orders.ProcessPending(ctx, "")
	if err != nil {
		return err
	}

	if summary.Filled > 0 || summary.Rejected > 0 || summary.Failed > 0 {
		j.log.Info().
			Int("attempted", summary.Attempted).
			Int("filled", summary.Filled).
			Int("rejected", summary.Rejected).
			Int("failed", summary.Failed).
			Msg("Pending orders processed")
	}
	return nil
}

// BackupJob uploads a ledger backup
type BackupJob struct {
	backup  BackupRunner
	timeout time.Duration
}

// NewBackupJob creates a new backup job
func NewBackupJob(backup BackupRunner) *BackupJob {
	return &BackupJob{backup: backup, timeout: 30 * time.Minute}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "ledger_backup"
}

// Run executes the backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.backup.Run(ctx)
}
