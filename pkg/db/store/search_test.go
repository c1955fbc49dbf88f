package store

import (
	"context"
	"testing"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSearchData(t *testing.T, s *SQLiteStore) uint {
	t.Helper()
	ctx := context.Background()

	tape, err := s.AddTapeIfMissing(ctx, "TAPE001", "/dev/nst0")
	require.NoError(t, err)

	archive := &models.Archive{TapeID: tape.ID, Name: "docs_20250101.tar", Status: models.ArchiveStatusStreaming}
	require.NoError(t, s.CreateArchive(ctx, archive))
	require.NoError(t, s.CompleteArchive(ctx, archive.ID, "abc", 1000, 4))

	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddFiles(ctx, archive.ID, []models.FileRecord{
		{Path: "reports/annual.pdf", SizeBytes: 5000, Type: "pdf", ModifiedAt: mod},
		{Path: "reports/summary.txt", SizeBytes: 100, Type: "txt", ModifiedAt: mod},
		{Path: "photos/holiday.jpg", SizeBytes: 250000, Type: "jpg", ModifiedAt: mod},
		{Path: "photos/holiday_copy.jpg", SizeBytes: 250000, Type: "jpg", ModifiedAt: mod},
	}))
	return archive.ID
}

func TestSearchFiles(t *testing.T) {
	s := newTestStore(t)
	seedSearchData(t, s)
	ctx := context.Background()

	tests := []struct {
		name     string
		filter   SearchFilter
		expected []string
	}{
		{
			name:     "substring match",
			filter:   SearchFilter{Query: "holiday"},
			expected: []string{"photos/holiday.jpg", "photos/holiday_copy.jpg"},
		},
		{
			name:     "type filter",
			filter:   SearchFilter{FileType: "pdf"},
			expected: []string{"reports/annual.pdf"},
		},
		{
			name:     "size range",
			filter:   SearchFilter{MinSize: 1000, MaxSize: 10000},
			expected: []string{"reports/annual.pdf"},
		},
		{
			name:     "combined filters",
			filter:   SearchFilter{Query: "reports", MaxSize: 500},
			expected: []string{"reports/summary.txt"},
		},
		{
			name:     "no match",
			filter:   SearchFilter{Query: "missing"},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := s.SearchFiles(ctx, tt.filter)
			require.NoError(t, err)

			var paths []string
			for _, hit := range hits {
				paths = append(paths, hit.Path)
			}
			assert.Equal(t, tt.expected, paths)
		})
	}
}

func TestSearchFilesJoinedMetadata(t *testing.T) {
	s := newTestStore(t)
	seedSearchData(t, s)

	hits, err := s.SearchFiles(context.Background(), SearchFilter{Query: "annual"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	assert.Equal(t, "docs_20250101.tar", hits[0].ArchiveName)
	assert.Equal(t, "TAPE001", hits[0].TapeLabel)
	assert.Equal(t, "/dev/nst0", hits[0].TapeDevice)
}

func TestRegexSearchFiles(t *testing.T) {
	s := newTestStore(t)
	seedSearchData(t, s)
	ctx := context.Background()

	hits, err := s.RegexSearchFiles(ctx, `^photos/.*\.jpg$`, SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.RegexSearchFiles(ctx, `holiday(_copy)?\.jpg`, SearchFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = s.RegexSearchFiles(ctx, `[invalid`, SearchFilter{})
	assert.Error(t, err)
}

func TestFindDuplicateFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tape, err := s.AddTapeIfMissing(ctx, "TAPE001", "/dev/nst0")
	require.NoError(t, err)
	for _, name := range []string{"first.tar", "second.tar"} {
		archive := &models.Archive{TapeID: tape.ID, Name: name, Status: models.ArchiveStatusStreaming}
		require.NoError(t, s.CreateArchive(ctx, archive))
		require.NoError(t, s.AddFiles(ctx, archive.ID, []models.FileRecord{
			{Path: "shared/readme.md", SizeBytes: 500},
			{Path: name + ".only", SizeBytes: 9},
		}))
	}

	groups, err := s.FindDuplicateFiles(ctx, DuplicatesByName)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "shared/readme.md", groups[0].Path)
	assert.Equal(t, int64(2), groups[0].Count)

	groups, err = s.FindDuplicateFiles(ctx, DuplicatesByNameAndSize)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(500), groups[0].SizeBytes)

	_, err = s.FindDuplicateFiles(ctx, DuplicateCriteria("bogus"))
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	archiveID := seedSearchData(t, s)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.TotalTapes)
	assert.Equal(t, int64(1), stats.TotalArchives)
	assert.Equal(t, int64(4), stats.TotalFiles)
	assert.Equal(t, int64(505100), stats.TotalFileBytes)
	assert.Equal(t, int64(2), stats.FileTypes["jpg"])
	assert.Equal(t, int64(1), stats.RecentArchives)
	require.NotEmpty(t, stats.LargestFiles)
	assert.Equal(t, int64(250000), stats.LargestFiles[0].SizeBytes)

	count, err := s.CountFiles(context.Background(), archiveID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
