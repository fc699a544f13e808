// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/config"
	"github.com/lotwise/lotwise/internal/database"
)

// InitializeDatabases initializes all 3 databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. app.db - Users, auth tokens, sessions, search history
	appDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileStandard,
		Name:    "app",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app database: %w", err)
	}
	container.AppDB = appDB

	// 2. ledger.db - Credit balances and append-only ledger
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDatabasePath(),
		Profile: database.ProfileLedger, // Maximum safety for the paid-usage audit trail
		Name:    "ledger",
	})
	if err != nil {
		appDB.Close()
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	// 3. cache.db - Shared compare cache
	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDatabasePath(),
		Profile: database.ProfileCache, // Maximum speed for rebuildable data
		Name:    "cache",
	})
	if err != nil {
		appDB.Close()
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// Apply schemas to all databases (single source of truth)
	for _, db := range []*database.DB{appDB, ledgerDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.CloseDatabases()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
