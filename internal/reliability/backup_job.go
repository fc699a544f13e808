package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// backupTimeout bounds a full snapshot, archive and upload cycle.
const backupTimeout = 15 * time.Minute

// DailyBackupJob creates an off-site backup and rotates old archives.
type DailyBackupJob struct {
	service *S3BackupService
	log     zerolog.Logger
}

// NewDailyBackupJob creates the daily backup job.
func NewDailyBackupJob(service *S3BackupService, log zerolog.Logger) *DailyBackupJob {
	return &DailyBackupJob{
		service: service,
		log:     log.With().Str("job", "daily_backup").Logger(),
	}
}

// Run performs the backup. Rotation failures are logged but do not fail
// the job, since the new archive is already safely uploaded.
func (j *DailyBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}

// Name returns the job name.
func (j *DailyBackupJob) Name() string {
	return "daily_backup"
}
