// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/modules/auth"
	"github.com/lotwise/lotwise/internal/modules/billing"
	"github.com/lotwise/lotwise/internal/modules/comparecache"
	"github.com/lotwise/lotwise/internal/modules/credits"
	"github.com/lotwise/lotwise/internal/modules/history"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Auth repository (needs appDB for users, tokens and sessions)
	container.AuthRepo = auth.NewRepository(
		container.AppDB.Conn(),
		log,
	)

	// Search history repository (needs appDB)
	container.HistoryRepo = history.NewRepository(
		container.AppDB.Conn(),
		log,
	)

	// Credits repository (needs ledgerDB)
	container.CreditsRepo = credits.NewRepository(
		container.LedgerDB.Conn(),
		log,
	)

	// Billing repository (needs ledgerDB for purchases and webhook dedup)
	container.BillingRepo = billing.NewRepository(
		container.LedgerDB.Conn(),
		log,
	)

	// Compare cache repository (needs cacheDB)
	container.CacheRepo = comparecache.NewRepository(
		container.CacheDB.Conn(),
		log,
	)

	log.Info().Msg("All repositories initialized")

	return nil
}
