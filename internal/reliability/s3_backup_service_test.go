package reliability

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArchive(t *testing.T) {
	backups := NewBackupService(newTestDatabases(t), zerolog.Nop())
	svc := NewS3BackupService(nil, backups, t.TempDir(), zerolog.Nop())

	stagingDir := t.TempDir()
	archivePath, metadata, err := svc.BuildArchive(stagingDir)
	require.NoError(t, err)

	info, err := os.Stat(archivePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	_, ok := parseBackupTimestamp(info.Name())
	assert.True(t, ok, "archive name %q must carry a parseable timestamp", info.Name())

	require.Len(t, metadata.Databases, 3)
	for _, db := range metadata.Databases {
		assert.Greater(t, db.SizeBytes, int64(0))
		assert.Regexp(t, "^sha256:[0-9a-f]{64}$", db.Checksum)
	}

	entries := readArchiveEntries(t, archivePath)
	assert.ElementsMatch(t,
		[]string{"app.db", "cache.db", "ledger.db", metadataFilename},
		entryNames(entries),
	)

	var stored BackupMetadata
	require.NoError(t, json.Unmarshal(entries[metadataFilename], &stored))
	assert.Equal(t, metadata.Databases, stored.Databases)
}

// readArchiveEntries returns the contents of a tar.gz archive keyed by
// entry name.
func readArchiveEntries(t *testing.T, path string) map[string][]byte {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gzipReader.Close()

	entries := make(map[string][]byte)
	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		data, err := io.ReadAll(tarReader)
		require.NoError(t, err)
		entries[header.Name] = data
	}

	return entries
}

func entryNames(entries map[string][]byte) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	return names
}

func TestParseBackupTimestamp(t *testing.T) {
	tests := []struct {
		filename string
		want     time.Time
		ok       bool
	}{
		{
			filename: "lotwise-backup-2026-01-08-143022.tar.gz",
			want:     time.Date(2026, 1, 8, 14, 30, 22, 0, time.UTC),
			ok:       true,
		},
		{filename: "other-backup-2026-01-08-143022.tar.gz", ok: false},
		{filename: "lotwise-backup-2026-01-08-143022.zip", ok: false},
		{filename: "lotwise-backup-not-a-time.tar.gz", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := parseBackupTimestamp(tt.filename)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackupsToRotate(t *testing.T) {
	newest := func(names ...string) []BackupInfo {
		backups := make([]BackupInfo, len(names))
		for i, name := range names {
			backups[i] = BackupInfo{Filename: name}
		}
		return backups
	}

	t.Run("fewer than keep", func(t *testing.T) {
		assert.Nil(t, backupsToRotate(newest("a", "b"), 3))
	})

	t.Run("exactly keep", func(t *testing.T) {
		assert.Nil(t, backupsToRotate(newest("a", "b", "c"), 3))
	})

	t.Run("keeps newest", func(t *testing.T) {
		stale := backupsToRotate(newest("a", "b", "c", "d", "e"), 3)
		require.Len(t, stale, 2)
		assert.Equal(t, "d", stale[0].Filename)
		assert.Equal(t, "e", stale[1].Filename)
	})
}
