/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to handlers for access to services.
 */
package di

import (
	"github.com/lotwise/lotwise/internal/clients/shopping"
	"github.com/lotwise/lotwise/internal/clients/stripe"
	"github.com/lotwise/lotwise/internal/database"
	"github.com/lotwise/lotwise/internal/dedup"
	"github.com/lotwise/lotwise/internal/modules/auth"
	"github.com/lotwise/lotwise/internal/modules/billing"
	"github.com/lotwise/lotwise/internal/modules/compare"
	"github.com/lotwise/lotwise/internal/modules/comparecache"
	"github.com/lotwise/lotwise/internal/modules/credits"
	"github.com/lotwise/lotwise/internal/modules/history"
	"github.com/lotwise/lotwise/internal/normalize"
	"github.com/lotwise/lotwise/internal/ratelimit"
	"github.com/lotwise/lotwise/internal/reliability"
	"github.com/lotwise/lotwise/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * This is the single source of truth for all service instances.
 * The container is created by Wire() and passed to the server for access to services.
 *
 * Architecture:
 * - Databases: 3-database architecture (app, ledger, cache)
 * - Clients: External API clients (shopping provider, Stripe)
 * - Repositories: Data access layer (auth, credits, billing, compare cache, history)
 * - Services: Business logic layer (normalization, rate limiting, credits, billing, compare)
 * - Scheduler: Cron-driven background jobs (cleanup, maintenance, backups)
 *
 * All dependencies are injected via constructor injection.
 */
type Container struct {
	// Databases (3-database architecture)
	// Each database uses SQLite with WAL mode and profile-specific PRAGMAs
	AppDB    *database.DB // Users, auth tokens, sessions, search history
	LedgerDB *database.DB // Credit balances and append-only ledger (audit trail)
	CacheDB  *database.DB // Shared compare cache (ephemeral, rebuildable)

	// Clients - External API integrations
	ShoppingClient *shopping.Client // Marketplace search provider
	StripeClient   *stripe.Client   // Stripe Checkout and webhooks

	// Repositories - Data access layer
	AuthRepo    *auth.Repository         // Token and session lookup
	CreditsRepo *credits.Repository      // Balances and ledger rows
	BillingRepo *billing.Repository      // Purchases and webhook dedup
	CacheRepo   *comparecache.Repository // Signature-keyed market results
	HistoryRepo *history.Repository      // Per-user search history

	// Services - Business logic layer
	NormalizeService *normalize.Service    // Title normalization (heuristic + optional AI)
	RateLimiter      *ratelimit.Service    // Per-user and per-IP request limits
	Deduper          *dedup.Deduper        // In-flight fetch deduplication
	CreditService    *credits.Service      // Credit consumption and grants
	BillingService   *billing.Service      // Checkout sessions and payment webhooks
	CacheService     *comparecache.Service // Compare cache resolution and storage
	CompareService   *compare.Service      // Compare orchestrator

	// Reliability - Maintenance and backups
	BackupService   *reliability.BackupService   // Database snapshots
	S3BackupService *reliability.S3BackupService // Off-site backups (nil when disabled)

	// Scheduler - Background job system
	Scheduler *scheduler.Scheduler
}

// Databases returns the databases keyed by name, for components that
// operate on all of them (backups, maintenance, health checks).
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"app":    c.AppDB,
		"ledger": c.LedgerDB,
		"cache":  c.CacheDB,
	}
}

// CloseDatabases closes all database connections. Safe to call with
// partially initialized databases.
func (c *Container) CloseDatabases() {
	for _, db := range []*database.DB{c.AppDB, c.LedgerDB, c.CacheDB} {
		if db != nil {
			db.Close()
		}
	}
}
