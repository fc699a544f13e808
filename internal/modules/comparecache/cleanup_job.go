package comparecache

import (
	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from the compare cache.
// Scheduled hourly; expired rows are also invisible to reads, so the job
// only reclaims space.
type CleanupJob struct {
	service *Service
	log     zerolog.Logger
}

// NewCleanupJob creates a new cache cleanup job.
func NewCleanupJob(service *Service, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		service: service,
		log:     log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run deletes all cache entries past their expiry.
func (j *CleanupJob) Run() error {
	deleted, err := j.service.CleanupExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache entries")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Compare cache cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}
