package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	config "github.com/mwantia/gotape/internal/config/server"
	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/mwantia/gotape/pkg/tape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPipeline wires the pipeline against an in-memory catalog and a
// plain file standing in for the tape device.
func newTestPipeline(t *testing.T) (*Pipeline, *store.SQLiteStore, string) {
	t.Helper()
	ctx := context.Background()

	catalog, err := store.NewSQLiteStore(store.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, catalog.Connect(ctx))
	require.NoError(t, catalog.Migrate(ctx))
	t.Cleanup(func() { catalog.Close() })

	device := filepath.Join(t.TempDir(), "tape.bin")
	require.NoError(t, os.WriteFile(device, nil, 0644))

	logger := log.NewLoggerService("test", config.LogServerConfig{Level: "error"})
	tapes := tape.NewManager(&tape.Toolset{Tar: "tar", DD: "dd"}, logger)

	cfg := config.TapeServerConfig{
		CapacityBytes: 6_000_000_000_000,
		BlockSize:     65536,
		StagingDir:    filepath.Join(t.TempDir(), "staging"),
		DefaultDevice: device,
	}
	return NewPipeline(catalog, tapes, cfg, logger), catalog, device
}

func TestCreateCached(t *testing.T) {
	pipeline, catalog, device := newTestPipeline(t)
	ctx := context.Background()

	source := writeTree(t, map[string]string{
		"one.txt":     "first file",
		"two.txt":     "second file",
		"sub/three.b": "third",
	})

	var stages []string
	result, err := pipeline.CreateCached(ctx, Request{
		SourcePath: source,
		Device:     device,
		TapeLabel:  "TAPE001",
		IndexFiles: true,
	}, func(p Progress) { stages = append(stages, p.Stage) })
	require.NoError(t, err)

	assert.NotZero(t, result.ArchiveID)
	assert.Equal(t, int64(3), result.FileCount)
	assert.NotEmpty(t, result.Checksum)
	assert.Contains(t, stages, "estimated")
	assert.Contains(t, stages, "writing")
	assert.Contains(t, stages, "completed")

	// The catalog row is completed with a verifiable checksum.
	row, err := catalog.GetArchive(ctx, result.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusCompleted, row.Status)
	assert.Equal(t, 1, row.Position)
	assert.True(t, row.Verified())

	// The device holds exactly the staged bytes: an independent digest
	// of the device content matches the recorded checksum.
	data, err := os.ReadFile(device)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	assert.Equal(t, result.Checksum, hex.EncodeToString(sum[:]))
	assert.Equal(t, result.SizeBytes, int64(len(data)))

	// Indexing recorded one row per file, relative to the source root.
	files, err := catalog.ArchiveFiles(ctx, result.ArchiveID, 0)
	require.NoError(t, err)
	require.Len(t, files, 3)
	paths := []string{files[0].Path, files[1].Path, files[2].Path}
	assert.Contains(t, paths, "one.txt")
	assert.Contains(t, paths, filepath.Join("sub", "three.b"))

	// Staging is cleaned up when not kept.
	entries, err := os.ReadDir(pipeline.cfg.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateCachedCompressed(t *testing.T) {
	pipeline, _, device := newTestPipeline(t)
	ctx := context.Background()

	source := writeTree(t, map[string]string{"doc.txt": "compress me please, compress me please"})

	result, err := pipeline.CreateCached(ctx, Request{
		SourcePath:  source,
		Device:      device,
		TapeLabel:   "TAPE001",
		Compression: true,
	}, nil)
	require.NoError(t, err)
	assert.True(t, len(result.Name) > len(".tar.gz"))
	assert.Contains(t, result.Name, ".tar.gz")

	// The device content is a readable gzip tar stream containing the
	// source file rooted at the folder name.
	f, err := os.Open(device)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	assert.Contains(t, names, "source/")
	assert.Contains(t, names, "source/doc.txt")
}

func TestCreateCachedValidation(t *testing.T) {
	pipeline, _, device := newTestPipeline(t)
	ctx := context.Background()

	_, err := pipeline.CreateCached(ctx, Request{SourcePath: t.TempDir(), Device: device, TapeLabel: "T"}, nil)
	assert.Error(t, err, "empty source folder")

	source := writeTree(t, map[string]string{"a": "x"})
	_, err = pipeline.CreateCached(ctx, Request{SourcePath: source, Device: device}, nil)
	assert.Error(t, err, "missing tape label")
}

func TestCreateCachedWriteFailureLeavesNoCompletedRow(t *testing.T) {
	pipeline, catalog, _ := newTestPipeline(t)
	ctx := context.Background()

	source := writeTree(t, map[string]string{"a.txt": "data"})

	// A device path that cannot be opened makes the block copy fail
	// after the catalog row was completed; the row must be rolled away.
	_, err := pipeline.CreateCached(ctx, Request{
		SourcePath: source,
		Device:     filepath.Join(t.TempDir(), "missing", "device"),
		TapeLabel:  "TAPE001",
	}, nil)
	require.Error(t, err)

	archives, err := catalog.ListArchives(ctx)
	require.NoError(t, err)
	assert.Empty(t, archives)

	// The tape total was never inflated by the failed write.
	tapeRow, err := catalog.FindTapeByLabel(ctx, "TAPE001")
	require.NoError(t, err)
	assert.Zero(t, tapeRow.TotalSizeBytes)
}

func TestDuplicateToTape(t *testing.T) {
	pipeline, catalog, device := newTestPipeline(t)
	ctx := context.Background()

	source := writeTree(t, map[string]string{"a.txt": "copy twice"})

	first, err := pipeline.CreateCached(ctx, Request{
		SourcePath:  source,
		Device:      device,
		TapeLabel:   "TAPE001",
		KeepStaging: true,
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.StagingPath)

	secondDevice := filepath.Join(t.TempDir(), "tape2.bin")
	require.NoError(t, os.WriteFile(secondDevice, nil, 0644))

	second, err := pipeline.DuplicateToTape(ctx, first, secondDevice, "TAPE002", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ArchiveID, second.ArchiveID)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, first.Name, second.Name)

	tapes, err := catalog.ListTapes(ctx)
	require.NoError(t, err)
	assert.Len(t, tapes, 2)

	// Without a kept staging file there is nothing to duplicate from.
	_, err = pipeline.DuplicateToTape(ctx, &CachedResult{}, secondDevice, "TAPE003", nil)
	assert.Error(t, err)
}
