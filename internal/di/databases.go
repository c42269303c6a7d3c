package di

import (
	"fmt"

	"github.com/aristath/autotrader/internal/config"
	"github.com/aristath/autotrader/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the ledger database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// ledger.db - the single source of truth for money, positions and orders
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
		Driver:  cfg.Ledger.Driver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}

	if err := ledgerDB.Migrate(); err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	log.Info().
		Str("path", ledgerDB.Path()).
		Str("driver", ledgerDB.Driver()).
		Msg("Ledger database initialized")

	return container, nil
}
