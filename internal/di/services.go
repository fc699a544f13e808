// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/clients/anthropic"
	"github.com/lotwise/lotwise/internal/clients/ollama"
	"github.com/lotwise/lotwise/internal/clients/openai"
	"github.com/lotwise/lotwise/internal/clients/shopping"
	"github.com/lotwise/lotwise/internal/clients/stripe"
	"github.com/lotwise/lotwise/internal/config"
	"github.com/lotwise/lotwise/internal/dedup"
	"github.com/lotwise/lotwise/internal/modules/billing"
	"github.com/lotwise/lotwise/internal/modules/compare"
	"github.com/lotwise/lotwise/internal/modules/comparecache"
	"github.com/lotwise/lotwise/internal/modules/credits"
	"github.com/lotwise/lotwise/internal/normalize"
	"github.com/lotwise/lotwise/internal/ratelimit"
	"github.com/lotwise/lotwise/internal/reliability"
	"github.com/lotwise/lotwise/internal/scheduler"
)

// InitializeServices creates all services and stores them in the container
// This is the SINGLE SOURCE OF TRUTH for all service creation
// Services are created in dependency order to ensure all dependencies exist
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// ==========================================
	// STEP 1: Initialize Clients
	// ==========================================

	// Shopping provider client (marketplace search API)
	container.ShoppingClient = shopping.NewClient(cfg.ShoppingAPIURL, cfg.ShoppingAPIKey, log)
	log.Info().Str("url", cfg.ShoppingAPIURL).Msg("Shopping client initialized")

	// Stripe client (checkout sessions, webhook verification)
	container.StripeClient = stripe.NewClient(cfg.StripeSecretKey, log)
	if cfg.StripeSecretKey != "" {
		log.Info().Msg("Stripe client initialized")
	} else {
		log.Warn().Msg("Stripe client initialized without secret key, checkout disabled")
	}

	// AI normalizer client (optional, provider chosen by configuration)
	aiNormalizer, err := buildAINormalizer(cfg, log)
	if err != nil {
		return err
	}

	// ==========================================
	// STEP 2: Initialize Services
	// ==========================================

	// Title normalization (heuristic pipeline with optional AI refinement)
	container.NormalizeService = normalize.NewService(normalize.Options{AI: aiNormalizer}, log)

	// Rate limiter (per-user and per-IP sliding windows)
	container.RateLimiter = ratelimit.NewService(log)

	// In-flight dedup (collapses concurrent fetches for the same signature)
	container.Deduper = dedup.New(log)

	// Credit service (balances, free grants, consumption)
	container.CreditService = credits.NewService(
		container.CreditsRepo,
		cfg.FreeCredits,
		log,
	)

	// Billing service (checkout sessions, payment webhooks)
	container.BillingService = billing.NewService(
		container.BillingRepo,
		container.CreditService,
		container.StripeClient,
		cfg.StripePriceIDs,
		cfg.AppBaseURL,
		log,
	)

	// Compare cache service (signature resolution, TTL, confidence)
	container.CacheService = comparecache.NewService(container.CacheRepo, log)

	// Compare orchestrator (normalization, cache, quota, fetch, verdict)
	container.CompareService = compare.NewService(
		container.NormalizeService,
		container.CacheService,
		container.CreditService,
		container.HistoryRepo,
		container.ShoppingClient,
		container.Deduper,
		cfg.VerdictMargin,
		log,
	)

	// ==========================================
	// STEP 3: Initialize Reliability Services
	// ==========================================

	// Backup service (consistent snapshots of all databases)
	container.BackupService = reliability.NewBackupService(container.Databases(), log)

	// Off-site backup service (optional, requires S3-compatible credentials)
	if cfg.BackupEnabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}

		container.S3BackupService = reliability.NewS3BackupService(
			s3Client,
			container.BackupService,
			cfg.DataDir,
			log,
		)
		log.Info().Str("bucket", cfg.S3Bucket).Msg("Off-site backups enabled")
	} else {
		log.Info().Msg("Off-site backups disabled")
	}

	// ==========================================
	// STEP 4: Initialize Scheduler
	// ==========================================

	container.Scheduler = scheduler.New(log)

	log.Info().Msg("All services initialized")

	return nil
}

// buildAINormalizer constructs the configured AI completion client and wraps
// it in a normalizer. Returns nil when AI normalization is disabled.
func buildAINormalizer(cfg *config.Config, log zerolog.Logger) (*normalize.AINormalizer, error) {
	switch cfg.AIProvider {
	case config.AIProviderAnthropic:
		client := anthropic.NewClient(cfg.AIAPIKey, cfg.AIModel, "", log)
		log.Info().Str("provider", client.Provider()).Str("model", cfg.AIModel).Msg("AI normalizer enabled")
		return normalize.NewAINormalizer(client, log), nil

	case config.AIProviderOpenAI:
		client := openai.NewClient(cfg.AIAPIKey, cfg.AIModel, "", log)
		log.Info().Str("provider", client.Provider()).Str("model", cfg.AIModel).Msg("AI normalizer enabled")
		return normalize.NewAINormalizer(client, log), nil

	case config.AIProviderOllama:
		client := ollama.NewClient(cfg.AIModel, cfg.AIBaseURL, log)
		log.Info().Str("provider", client.Provider()).Str("url", cfg.AIBaseURL).Msg("AI normalizer enabled")
		return normalize.NewAINormalizer(client, log), nil

	case config.AIProviderNone, "":
		log.Info().Msg("AI normalizer disabled, heuristic only")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown AI provider: %q", cfg.AIProvider)
	}
}
