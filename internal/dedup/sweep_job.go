package dedup

import (
	"github.com/rs/zerolog"
)

// SweepJob expires in-flight registrations that outlived StaleAge. A fetch
// that leaked (provider hung, goroutine lost) would otherwise absorb every
// future caller for its key.
type SweepJob struct {
	deduper *Deduper
	log     zerolog.Logger
}

// NewSweepJob creates a new dedup sweep job.
func NewSweepJob(deduper *Deduper, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		deduper: deduper,
		log:     log.With().Str("job", "dedup_sweep").Logger(),
	}
}

// Run forgets in-flight keys older than StaleAge.
func (j *SweepJob) Run() error {
	removed := j.deduper.SweepStale(StaleAge)
	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Msg("Dedup sweep completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *SweepJob) Name() string {
	return "dedup_sweep"
}
