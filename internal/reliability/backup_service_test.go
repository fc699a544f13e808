package reliability

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotwise/lotwise/internal/database"
)

// newTestDatabases creates the three application databases in a temp
// directory, migrated and ready for snapshotting.
func newTestDatabases(t *testing.T) map[string]*database.DB {
	t.Helper()

	dir := t.TempDir()
	profiles := map[string]database.DatabaseProfile{
		"app":    database.ProfileStandard,
		"ledger": database.ProfileLedger,
		"cache":  database.ProfileCache,
	}

	databases := make(map[string]*database.DB, len(profiles))
	for name, profile := range profiles {
		db, err := database.New(database.Config{
			Path:    filepath.Join(dir, name+".db"),
			Profile: profile,
			Name:    name,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, db.Migrate())

		databases[name] = db
	}

	return databases
}

func TestDatabaseNames_StableOrder(t *testing.T) {
	svc := NewBackupService(newTestDatabases(t), zerolog.Nop())
	assert.Equal(t, []string{"app", "cache", "ledger"}, svc.DatabaseNames())
}

func TestBackupDatabase_SnapshotIsReadable(t *testing.T) {
	databases := newTestDatabases(t)
	_, err := databases["app"].Exec(
		"INSERT INTO users (id, email, created_at) VALUES ('u_1', 'snap@example.com', 1700000000)",
	)
	require.NoError(t, err)

	svc := NewBackupService(databases, zerolog.Nop())

	dest := filepath.Join(t.TempDir(), "app.db")
	require.NoError(t, svc.BackupDatabase("app", dest))
	require.NoError(t, svc.VerifySnapshot(dest))

	snap, err := sql.Open("sqlite", dest)
	require.NoError(t, err)
	defer snap.Close()

	var email string
	require.NoError(t, snap.QueryRow("SELECT email FROM users WHERE id = 'u_1'").Scan(&email))
	assert.Equal(t, "snap@example.com", email)
}

func TestBackupDatabase_UnknownName(t *testing.T) {
	svc := NewBackupService(newTestDatabases(t), zerolog.Nop())

	err := svc.BackupDatabase("nope", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database")
}

func TestVerifySnapshot_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	require.NoError(t, os.WriteFile(path, []byte("not a sqlite file at all"), 0o644))

	svc := NewBackupService(newTestDatabases(t), zerolog.Nop())
	assert.Error(t, svc.VerifySnapshot(path))
}
