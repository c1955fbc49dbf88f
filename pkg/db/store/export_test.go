package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedExportData(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		tape, err := s.AddTapeIfMissing(ctx, fmt.Sprintf("TAPE%03d", i), fmt.Sprintf("/dev/nst%d", i-1))
		require.NoError(t, err)

		archive := &models.Archive{
			TapeID:       tape.ID,
			Name:         fmt.Sprintf("backup_%d.tar", i),
			SourceFolder: "/data/projects",
			Status:       models.ArchiveStatusStreaming,
		}
		require.NoError(t, s.CreateArchive(ctx, archive))
		require.NoError(t, s.CompleteArchive(ctx, archive.ID, "abc", 1000, 2))
		require.NoError(t, s.AddFiles(ctx, archive.ID, []models.FileRecord{
			{Path: "a.txt", SizeBytes: 500, Type: "txt"},
			{Path: "b.txt", SizeBytes: 500, Type: "txt"},
		}))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := newTestStore(t)
	seedExportData(t, src)
	ctx := context.Background()

	snapshot, err := src.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Tapes, 2)
	require.Len(t, snapshot.Tapes[0].Archives, 1)
	assert.False(t, snapshot.Tapes[0].Archives[0].FilesTruncated)
	assert.Equal(t, int64(2), snapshot.Tapes[0].Archives[0].TotalFiles)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, WriteSnapshotFile(snapshot, path))
	loaded, err := ReadSnapshotFile(path)
	require.NoError(t, err)

	// Import into a fresh store reproduces the same counts.
	dst := newTestStore(t)
	summary, err := dst.ImportSnapshot(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TapesImported)
	assert.Equal(t, 2, summary.ArchivesImported)
	assert.Equal(t, 4, summary.FilesImported)
	assert.Equal(t, 8, summary.Total())

	stats, err := dst.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTapes)
	assert.Equal(t, int64(2), stats.TotalArchives)
	assert.Equal(t, int64(4), stats.TotalFiles)

	// Restored rows keep their original creation times instead of being
	// stamped with the import time.
	srcArchive, err := src.FindArchiveByName(ctx, "backup_1.tar")
	require.NoError(t, err)
	dstArchive, err := dst.FindArchiveByName(ctx, "backup_1.tar")
	require.NoError(t, err)
	assert.WithinDuration(t, srcArchive.CreatedAt, dstArchive.CreatedAt, time.Second)

	srcTape, err := src.FindTapeByLabel(ctx, "TAPE001")
	require.NoError(t, err)
	dstTape, err := dst.FindTapeByLabel(ctx, "TAPE001")
	require.NoError(t, err)
	assert.WithinDuration(t, srcTape.CreatedAt, dstTape.CreatedAt, time.Second)

	// Importing the same snapshot again adds zero new rows.
	again, err := dst.ImportSnapshot(ctx, loaded)
	require.NoError(t, err)
	assert.Zero(t, again.Total())
	assert.NotZero(t, again.Skipped)
}

// Deleting an archive leaves a gap in the tape positions; a restored
// catalog must keep the surviving positions as recorded, or extraction
// would seek the wrong file mark.
func TestImportKeepsArchivePositions(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()

	tape, err := src.AddTapeIfMissing(ctx, "TAPE001", "/dev/nst0")
	require.NoError(t, err)

	ids := make([]uint, 3)
	for i := 1; i <= 3; i++ {
		archive := &models.Archive{
			TapeID:       tape.ID,
			Name:         fmt.Sprintf("a%d.tar", i),
			SourceFolder: "/data",
			Status:       models.ArchiveStatusStreaming,
		}
		require.NoError(t, src.CreateArchive(ctx, archive))
		require.NoError(t, src.CompleteArchive(ctx, archive.ID, "sum", 100, 1))
		ids[i-1] = archive.ID
	}
	require.NoError(t, src.DeleteArchive(ctx, ids[1]))

	snapshot, err := src.Snapshot(ctx)
	require.NoError(t, err)

	dst := newTestStore(t)
	_, err = dst.ImportSnapshot(ctx, snapshot)
	require.NoError(t, err)

	restored, err := dst.FindArchiveByName(ctx, "a3.tar")
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Position)

	first, err := dst.FindArchiveByName(ctx, "a1.tar")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)

	// The CSV path restores the same positions.
	dir := t.TempDir()
	require.NoError(t, src.ExportCSV(ctx, dir))

	csvDst := newTestStore(t)
	_, err = csvDst.ImportCSV(ctx, dir)
	require.NoError(t, err)

	restored, err = csvDst.FindArchiveByName(ctx, "a3.tar")
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Position)
}

func TestSnapshotTruncatesFileList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tape, err := s.AddTapeIfMissing(ctx, "TAPE001", "/dev/nst0")
	require.NoError(t, err)
	archive := &models.Archive{TapeID: tape.ID, Name: "big.tar", Status: models.ArchiveStatusStreaming}
	require.NoError(t, s.CreateArchive(ctx, archive))

	files := make([]models.FileRecord, exportFileLimit+10)
	for i := range files {
		files[i] = models.FileRecord{Path: fmt.Sprintf("file_%04d.dat", i)}
	}
	require.NoError(t, s.AddFiles(ctx, archive.ID, files))

	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Tapes, 1)
	require.Len(t, snapshot.Tapes[0].Archives, 1)

	as := snapshot.Tapes[0].Archives[0]
	assert.True(t, as.FilesTruncated)
	assert.Len(t, as.Files, exportFileLimit)
	assert.Equal(t, int64(exportFileLimit+10), as.TotalFiles)

	// Truncated lists are never imported.
	dst := newTestStore(t)
	summary, err := dst.ImportSnapshot(ctx, snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ArchivesImported)
	assert.Zero(t, summary.FilesImported)
}

func TestCSVRoundTrip(t *testing.T) {
	src := newTestStore(t)
	seedExportData(t, src)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, src.ExportCSV(ctx, dir))

	dst := newTestStore(t)
	summary, err := dst.ImportCSV(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TapesImported)
	assert.Equal(t, 2, summary.ArchivesImported)
	assert.Equal(t, 4, summary.FilesImported)

	// Idempotent on re-import.
	again, err := dst.ImportCSV(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, again.TapesImported)
	assert.Zero(t, again.ArchivesImported)
	assert.Zero(t, again.FilesImported)

	tape, err := dst.FindTapeByLabel(ctx, "TAPE001")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tape.TotalSizeBytes)

	archive, err := dst.FindArchiveByName(ctx, "backup_1.tar")
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusCompleted, archive.Status)
	assert.Equal(t, "/data/projects", archive.SourceFolder)

	srcArchive, err := src.FindArchiveByName(ctx, "backup_1.tar")
	require.NoError(t, err)
	assert.WithinDuration(t, srcArchive.CreatedAt, archive.CreatedAt, time.Second)
}
