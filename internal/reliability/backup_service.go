package reliability

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/database"
)

// BackupService snapshots the application databases. VACUUM INTO produces a
// consistent, defragmented copy without blocking writers, so snapshots are
// safe to take while the server is serving requests.
type BackupService struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewBackupService creates a backup service over the given databases,
// keyed by name (app, ledger, cache).
func NewBackupService(databases map[string]*database.DB, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DatabaseNames returns the managed database names in stable order.
func (s *BackupService) DatabaseNames() []string {
	return sortedNames(s.databases)
}

// BackupDatabase writes a consistent snapshot of the named database to
// destPath. The destination file must not already exist.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("unknown database: %s", name)
	}

	if err := db.VacuumInto(destPath); err != nil {
		return fmt.Errorf("failed to snapshot %s: %w", name, err)
	}

	s.log.Debug().Str("database", name).Str("dest", destPath).Msg("Database snapshot written")
	return nil
}

// VerifySnapshot opens a snapshot file and runs an integrity check on it.
func (s *BackupService) VerifySnapshot(path string) error {
	snap, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer snap.Close()

	var result string
	if err := snap.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", path, result)
	}

	return nil
}
