package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackupJob runs a scheduled backup and rotation cycle.
type BackupJob struct {
	service *BackupService
	keep    int
	log     zerolog.Logger
}

// NewBackupJob creates the scheduled backup job. keep is the number of
// archives retained after rotation.
func NewBackupJob(service *BackupService, keep int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		keep:    keep,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job identifier for scheduler logging.
func (j *BackupJob) Name() string {
	return "database_backup"
}

// Run creates and uploads a backup, then rotates old archives. Rotation
// failure is logged but does not fail the run: the new backup is already safe.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, j.keep); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
