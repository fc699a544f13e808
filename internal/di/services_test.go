package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotwise/lotwise/internal/config"
)

// initThroughRepositories runs the wiring steps up to and including
// repositories.
func initThroughRepositories(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	log := zerolog.Nop()

	container, err := InitializeDatabases(cfg, log)
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(container.CloseDatabases)

	require.NoError(t, InitializeRepositories(container, log))
	return container
}

func TestInitializeServices(t *testing.T) {
	cfg := testConfig(t)
	container := initThroughRepositories(t, cfg)

	err := InitializeServices(container, cfg, zerolog.Nop())
	require.NoError(t, err)

	// Clients
	assert.NotNil(t, container.ShoppingClient)
	assert.NotNil(t, container.StripeClient)

	// Core services
	assert.NotNil(t, container.NormalizeService)
	assert.NotNil(t, container.RateLimiter)
	assert.NotNil(t, container.Deduper)
	assert.NotNil(t, container.CreditService)
	assert.NotNil(t, container.BillingService)
	assert.NotNil(t, container.CacheService)
	assert.NotNil(t, container.CompareService)

	// Reliability and scheduling
	assert.NotNil(t, container.BackupService)
	assert.NotNil(t, container.Scheduler)

	// Backups are disabled by default
	assert.Nil(t, container.S3BackupService)
}

func TestInitializeServices_BackupsEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackupEnabled = true
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.S3Region = "auto"
	cfg.S3Bucket = "lotwise-backups"
	cfg.S3AccessKeyID = "test-key"
	cfg.S3SecretAccessKey = "test-secret"

	container := initThroughRepositories(t, cfg)

	err := InitializeServices(container, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, container.S3BackupService)
}

func TestInitializeServices_UnknownAIProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.AIProvider = "clippy"

	container := initThroughRepositories(t, cfg)

	err := InitializeServices(container, cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown AI provider")
}

func TestInitializeServices_NilContainer(t *testing.T) {
	err := InitializeServices(nil, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}
