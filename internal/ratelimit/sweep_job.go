package ratelimit

import (
	"github.com/rs/zerolog"
)

// SweepJob drops rate-limit windows that have fully expired. The limiters
// already sweep probabilistically on writes; the job bounds memory for keys
// that stop making requests entirely.
type SweepJob struct {
	service *Service
	log     zerolog.Logger
}

// NewSweepJob creates a new rate-limit sweep job.
func NewSweepJob(service *Service, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		service: service,
		log:     log.With().Str("job", "ratelimit_sweep").Logger(),
	}
}

// Run removes expired windows from the user and IP limiters.
func (j *SweepJob) Run() error {
	removed := j.service.Sweep()
	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Int("tracked", j.service.Tracked()).
			Msg("Rate limit sweep completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *SweepJob) Name() string {
	return "ratelimit_sweep"
}
