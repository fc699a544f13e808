// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/config"
	"github.com/lotwise/lotwise/internal/dedup"
	"github.com/lotwise/lotwise/internal/modules/comparecache"
	"github.com/lotwise/lotwise/internal/ratelimit"
	"github.com/lotwise/lotwise/internal/reliability"
	"github.com/lotwise/lotwise/internal/scheduler"
)

// Cron expressions use the six-field form with a leading seconds field.
const (
	scheduleCacheCleanup      = "0 0 * * * *"   // hourly
	scheduleDedupSweep        = "0 */5 * * * *" // every 5 minutes
	scheduleRateLimitSweep    = "0 */10 * * * *"
	scheduleDailyBackup       = "0 0 3 * * *" // 03:00, before maintenance
	scheduleDailyMaintenance  = "0 0 4 * * *" // 04:00
	scheduleWeeklyMaintenance = "0 0 5 * * 0" // Sunday 05:00
)

// RegisterJobs registers all background jobs with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	type scheduledJob struct {
		schedule string
		job      scheduler.Job
	}

	jobs := []scheduledJob{
		// Expired compare cache entries are served-stale never: drop them hourly.
		{scheduleCacheCleanup, comparecache.NewCleanupJob(container.CacheService, log)},

		// Forget dedup keys whose fetch died without cleanup.
		{scheduleDedupSweep, dedup.NewSweepJob(container.Deduper, log)},

		// Drop rate limiter state for users and IPs that went quiet.
		{scheduleRateLimitSweep, ratelimit.NewSweepJob(container.RateLimiter, log)},

		// Integrity checks, WAL truncation and disk-space check.
		{scheduleDailyMaintenance, reliability.NewDailyMaintenanceJob(container.Databases(), cfg.DataDir, log)},

		// VACUUM everything but the append-only ledger.
		{scheduleWeeklyMaintenance, reliability.NewWeeklyMaintenanceJob(container.Databases(), log)},
	}

	if container.S3BackupService != nil {
		jobs = append(jobs, scheduledJob{
			scheduleDailyBackup,
			reliability.NewDailyBackupJob(container.S3BackupService, log),
		})
	}

	for _, sj := range jobs {
		if err := container.Scheduler.AddJob(sj.schedule, sj.job); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", sj.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(jobs)).Msg("All jobs registered")

	return nil
}
