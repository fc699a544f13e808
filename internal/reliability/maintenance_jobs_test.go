package reliability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyMaintenanceJob_Run(t *testing.T) {
	databases := newTestDatabases(t)
	job := NewDailyMaintenanceJob(databases, t.TempDir(), zerolog.Nop())

	assert.Equal(t, "daily_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestDailyMaintenanceJob_FailsWhenDatabaseUnhealthy(t *testing.T) {
	databases := newTestDatabases(t)
	require.NoError(t, databases["ledger"].Close())

	job := NewDailyMaintenanceJob(databases, t.TempDir(), zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger")
}

func TestWeeklyMaintenanceJob_Run(t *testing.T) {
	databases := newTestDatabases(t)

	// Churn some rows so VACUUM has free pages to reclaim.
	_, err := databases["cache"].Exec(`
		INSERT INTO compare_cache
			(id, signature_strict, signature_loose, query_used, results, stats, confidence, fetched_at, expires_at)
		VALUES
			('c_1', 'sig-strict', 'sig-loose', 'query', X'00', X'00', 'high', 1700000000, 1700003600)
	`)
	require.NoError(t, err)
	_, err = databases["cache"].Exec("DELETE FROM compare_cache")
	require.NoError(t, err)

	job := NewWeeklyMaintenanceJob(databases, zerolog.Nop())

	assert.Equal(t, "weekly_maintenance", job.Name())
	assert.NoError(t, job.Run())
}
