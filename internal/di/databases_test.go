package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotwise/lotwise/internal/config"
)

// testConfig returns a minimal valid configuration rooted in a temp
// directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		DataDir:        dir,
		DatabasePath:   filepath.Join(dir, "app.db"),
		Port:           8080,
		AIProvider:     config.AIProviderNone,
		StripePriceIDs: map[string]string{},
		FreeCredits:    1,
		VerdictMargin:  0.15,
	}
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()

	container, err := InitializeDatabases(cfg, log)
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(container.CloseDatabases)

	// Verify all 3 databases are initialized
	assert.NotNil(t, container.AppDB)
	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.CacheDB)

	// Verify database files are created
	assert.FileExists(t, filepath.Join(cfg.DataDir, "app.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "ledger.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))
}

func TestInitializeDatabases_InvalidPath(t *testing.T) {
	// A regular file where the data directory should be makes MkdirAll
	// fail regardless of privileges.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cfg := &config.Config{
		DataDir:      filepath.Join(blocker, "data"),
		DatabasePath: filepath.Join(blocker, "data", "app.db"),
	}
	log := zerolog.Nop()

	container, err := InitializeDatabases(cfg, log)
	assert.Error(t, err)
	assert.Nil(t, container)
}

func TestInitializeDatabases_SchemaMigration(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()

	container, err := InitializeDatabases(cfg, log)
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(container.CloseDatabases)

	// Verify schemas are applied by checking a known table per database.
	// Full schema tests are in the database package.
	tables := map[string]struct {
		db    string
		table string
	}{
		"app":    {"app", "users"},
		"ledger": {"ledger", "credit_ledger"},
		"cache":  {"cache", "compare_cache"},
	}

	for name, tt := range tables {
		var count int
		err := container.Databases()[tt.db].QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tt.table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "expected table %s in %s", tt.table, name)
	}
}
