package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/autotrader/internal/config"
	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/events"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/market"
	"github.com/aristath/autotrader/internal/modules/portfolio"
	"github.com/aristath/autotrader/internal/modules/risk"
	"github.com/aristath/autotrader/internal/modules/signals"
	"github.com/aristath/autotrader/internal/modules/snapshots"
	"github.com/aristath/autotrader/internal/modules/trading"
	"github.com/aristath/autotrader/internal/reliability"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// tickRetryTimeout bounds the pending-order retry triggered by a single tick
const tickRetryTimeout = 30 * time.Second

// InitializeServices creates every service on top of an initialized database
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.LedgerDB == nil {
		return fmt.Errorf("container has no ledger database")
	}

	// ==========================================
	// Events
	// ==========================================
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	// ==========================================
	// Ledger
	// ==========================================
	container.Ledger = ledger.NewStore(container.LedgerDB, log, ledger.Options{
		MaxRetries: cfg.Ledger.MaxRetries,
	})

	account, err := container.Ledger.EnsureAccount(ctx, decimal.NewFromFloat(cfg.Ledger.InitialCapital))
	if err != nil {
		return fmt.Errorf("failed to initialize account: %w", err)
	}
	log.Info().
		Str("cash", account.Cash.String()).
		Str("total_value", account.TotalValue.String()).
		Msg("Account loaded")

	// ==========================================
	// Market data
	// ==========================================
	container.MarketRepo = market.NewRepository(container.LedgerDB, log)
	container.Market = market.NewService(container.MarketRepo, log)

	// ==========================================
	// Trading
	// ==========================================
	container.Limits = risk.NewLimits(cfg.Risk.MaxPositionFraction, cfg.Risk.CommissionRate, cfg.Risk.SymbolLimits)
	container.Executor = trading.NewExecutor(container.Ledger, container.Market, container.Limits, log)
	container.Trading = trading.NewTradingService(container.Ledger, container.Executor, container.EventManager, log)
	container.MarkToMarket = portfolio.NewMarkToMarket(container.Ledger, container.Market, log)
	container.Snapshots = snapshots.NewService(container.Ledger, log)

	// ==========================================
	// Signals
	// ==========================================
	container.SignalRepo = signals.NewRepository(container.LedgerDB, log)
	container.Sizer = signals.NewSizer(container.Limits)

	intakeCfg := signals.IntakeConfig{QueueSize: cfg.Signals.QueueSize}
	if cfg.Signals.RecordPrice {
		intakeCfg.Prices = container.Market
	}
	container.Intake = signals.NewIntake(
		container.Trading,
		container.Ledger,
		container.Sizer,
		container.SignalRepo,
		container.EventManager,
		intakeCfg,
		log,
	)
	if cfg.Signals.WebSocketURL != "" {
		container.SignalSources = append(container.SignalSources, signals.NewWebSocketSource(cfg.Signals.WebSocketURL, log))
	}

	// ==========================================
	// Reliability
	// ==========================================
	store, err := newBackupStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	container.BackupStore = store
	container.BackupService = reliability.NewBackupService(
		container.LedgerDB,
		store,
		cfg.BackupStagingDir(),
		cfg.Backup.RetentionDays,
		container.EventManager,
		log,
	)

	registerListeners(container, log)

	return nil
}

// newBackupStore returns the S3 store when a bucket is configured, else a local directory
func newBackupStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (reliability.ObjectStore, error) {
	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Store(ctx, reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup store: %w", err)
		}
		return store, nil
	}

	log.Info().Str("dir", cfg.LocalBackupDir()).Msg("No backup bucket configured, keeping backups locally")
	store, err := reliability.NewDirStore(cfg.LocalBackupDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create local backup store: %w", err)
	}
	return store, nil
}

// registerListeners connects ticks and revaluations to events and pending-order retries
func registerListeners(container *Container, log zerolog.Logger) {
	listenerLog := log.With().Str("component", "listeners").Logger()

	container.Market.OnTick(func(ctx context.Context, tick domain.MarketPrice) {
		container.EventManager.EmitTyped("market", &events.PriceUpdatedData{
			Symbol: tick.Symbol,
			Price:  tick.Price.String(),
			AsOf:   tick.AsOf.Format(time.RFC3339Nano),
		})

		// Outlives the request that delivered the tick
		retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tickRetryTimeout)
		defer cancel()

		summary, err := container.Trading.ProcessPending(retryCtx, tick.Symbol)
		if err != nil {
			listenerLog.Error().Err(err).Str("symbol", tick.Symbol).Msg("Pending order retry failed")
			container.EventManager.EmitError("trading", err, map[string]interface{}{"symbol": tick.Symbol})
			return
		}
		if summary.Attempted > 0 {
			listenerLog.Info().
				Str("symbol", tick.Symbol).
				Int("attempted", summary.Attempted).
				Int("filled", summary.Filled).
				Int("rejected", summary.Rejected).
				Msg("Pending orders retried on tick")
		}
	})

	container.Ledger.OnRevaluation(func(snapshot domain.PortfolioSnapshot) {
		container.EventManager.EmitTyped("portfolio", &events.PortfolioRevaluedData{
			TotalValue:  snapshot.TotalValue.String(),
			Cash:        snapshot.Cash.String(),
			TotalPnL:    snapshot.TotalPnL.String(),
			TotalReturn: snapshot.TotalReturn.String(),
		})
	})
}
