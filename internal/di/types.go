/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server and jobs for access to services.
 */
package di

import (
	"github.com/aristath/autotrader/internal/database"
	"github.com/aristath/autotrader/internal/events"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/market"
	"github.com/aristath/autotrader/internal/modules/portfolio"
	"github.com/aristath/autotrader/internal/modules/risk"
	"github.com/aristath/autotrader/internal/modules/signals"
	"github.com/aristath/autotrader/internal/modules/snapshots"
	"github.com/aristath/autotrader/internal/modules/trading"
	"github.com/aristath/autotrader/internal/reliability"
	"github.com/aristath/autotrader/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Database: a single ledger.db (account, positions, orders, trades, snapshots, prices, signals)
 * - Events: synchronous bus plus the manager services emit through
 * - Services: market data, execution, trading, mark-to-market, snapshots, signal intake
 * - Reliability: backups to S3-compatible storage or a local directory
 * - Scheduler: cron jobs for revaluation, pending orders, maintenance and backups
 */
type Container struct {
	// Database
	LedgerDB *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Ledger and market data
	Ledger     *ledger.Store
	MarketRepo *market.Repository
	Market     *market.Service

	// Trading
	Limits       risk.Limits
	Executor     *trading.Executor
	Trading      *trading.TradingService
	MarkToMarket *portfolio.MarkToMarket
	Snapshots    *snapshots.Service

	// Signals
	SignalRepo    *signals.Repository
	Sizer         *signals.Sizer
	Intake        *signals.Intake
	SignalSources []signals.Source

	// Reliability
	BackupStore   reliability.ObjectStore
	BackupService *reliability.BackupService

	// Jobs
	Scheduler *scheduler.Scheduler
}

// Close stops the scheduler and closes the ledger database
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.LedgerDB != nil {
		return c.LedgerDB.Close()
	}
	return nil
}
