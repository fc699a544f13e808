package reliability

import (
	"context"
	"fmt"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/database"
)

const (
	// maintenanceTimeout bounds the integrity checks across all databases.
	maintenanceTimeout = 5 * time.Minute

	// lowDiskThresholdGB is the free-space floor below which maintenance
	// logs a warning.
	lowDiskThresholdGB = 1.0
)

// DailyMaintenanceJob verifies database integrity, truncates WAL files
// and checks free disk space on the data directory.
type DailyMaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates the daily maintenance job.
func NewDailyMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job. A failed integrity check fails
// the job; WAL checkpoint and disk-space problems only log.
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	for _, name := range sortedNames(j.databases) {
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := j.databases[name].HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	for _, name := range sortedNames(j.databases) {
		j.log.Debug().Str("database", name).Msg("Running WAL checkpoint")

		if err := j.databases[name].WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed")

	return nil
}

// Name returns the job name.
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace warns when free space on the data directory drops below
// the threshold. Running out of disk corrupts SQLite WAL files, so the
// warning needs to fire well before that point.
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9

	if availableGB < lowDiskThresholdGB {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Str("data_dir", j.dataDir).
			Msg("Low disk space on data directory")
		return nil
	}

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")
	return nil
}

// WeeklyMaintenanceJob reclaims space with VACUUM. The ledger is
// append-only and audit-sensitive, so it is never vacuumed.
type WeeklyMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates the weekly maintenance job.
func NewWeeklyMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Run executes the weekly maintenance job. A failed VACUUM on one
// database does not stop the others.
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	for _, name := range sortedNames(j.databases) {
		if name == "ledger" {
			j.log.Debug().Str("database", name).Msg("Skipping VACUUM for append-only ledger")
			continue
		}

		if err := j.vacuumDatabase(j.databases[name]); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("VACUUM failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Weekly maintenance completed")

	return nil
}

// Name returns the job name.
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// vacuumDatabase runs VACUUM and logs how much space it reclaimed.
func (j *WeeklyMaintenanceJob) vacuumDatabase(db *database.DB) error {
	before, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats before vacuum: %w", err)
	}

	if err := db.Vacuum(); err != nil {
		return err
	}

	after, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats after vacuum: %w", err)
	}

	sizeBefore := float64(before.PageCount*before.PageSize) / 1024 / 1024
	sizeAfter := float64(after.PageCount*after.PageSize) / 1024 / 1024

	j.log.Info().
		Str("database", db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}

// sortedNames returns map keys in stable order for deterministic logs.
func sortedNames(databases map[string]*database.DB) []string {
	names := make([]string, 0, len(databases))
	for name := range databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
