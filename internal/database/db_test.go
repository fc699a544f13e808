package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestNewAppliesProfilePragmas(t *testing.T) {
	tests := []struct {
		profile     DatabaseProfile
		synchronous int // 0=OFF 1=NORMAL 2=FULL
	}{
		{ProfileLedger, 2},
		{ProfileCache, 0},
		{ProfileStandard, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			db := openTestDB(t, string(tt.profile), tt.profile)

			var journalMode string
			require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
			assert.Equal(t, "wal", journalMode)

			var synchronous int
			require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
			assert.Equal(t, tt.synchronous, synchronous)
		})
	}
}

func TestMigrateAppliesEmbeddedSchema(t *testing.T) {
	tests := []struct {
		name  string
		table string
	}{
		{"app", "search_history"},
		{"ledger", "credit_ledger"},
		{"cache", "compare_cache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t, tt.name, ProfileStandard)
			require.NoError(t, db.Migrate())

			var count int
			err := db.QueryRow(
				"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tt.table,
			).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "expected table %s to exist", tt.table)

			// Re-applying must be a no-op, not an error
			assert.NoError(t, db.Migrate())
		})
	}
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db := openTestDB(t, "scratch", ProfileStandard)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := openTestDB(t, "tx", ProfileStandard)
	_, err := db.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	countItems := func() int {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
		return n
	}

	t.Run("commit on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO items (name) VALUES ('kept')")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countItems())
	})

	t.Run("rollback on error", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (name) VALUES ('dropped')"); err != nil {
				return err
			}
			return fmt.Errorf("boom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Equal(t, 1, countItems())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (name) VALUES ('dropped')"); err != nil {
				return err
			}
			panic("kaboom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
		assert.Equal(t, 1, countItems())
	})

	t.Run("nil connection", func(t *testing.T) {
		err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
		assert.Error(t, err)
	})
}

func TestHealthCheckAndStats(t *testing.T) {
	db := openTestDB(t, "ledger", ProfileLedger)
	require.NoError(t, db.Migrate())

	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.QuickCheck(context.Background()))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestVacuumInto(t *testing.T) {
	db := openTestDB(t, "cache", ProfileCache)
	require.NoError(t, db.Migrate())

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, db.VacuumInto(dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
