package recovery

import (
	"context"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/db/store"
)

// FileLocation points at one tape position where a file can be found.
type FileLocation struct {
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	ArchiveName string `json:"archive_name"`
	TapeLabel   string `json:"tape_label"`
	Device      string `json:"device"`
}

// FindFileLocations searches the catalog for every tape holding a file
// whose path matches the query. Advisory: returns nil on lookup
// failure.
func (e *Engine) FindFileLocations(ctx context.Context, query string) []FileLocation {
	hits, err := e.catalog.SearchFiles(ctx, store.SearchFilter{Query: query})
	if err != nil {
		e.log.Warn("File location search for %q failed: %v", query, err)
		return nil
	}
	locations := make([]FileLocation, 0, len(hits))
	for _, hit := range hits {
		locations = append(locations, FileLocation{
			Path:        hit.Path,
			SizeBytes:   hit.SizeBytes,
			ArchiveName: hit.ArchiveName,
			TapeLabel:   hit.TapeLabel,
			Device:      hit.TapeDevice,
		})
	}
	return locations
}

// Stats summarizes recovery-relevant catalog state.
type Stats struct {
	TotalArchives    int64 `json:"total_archives"`
	FailedStreaming  int64 `json:"failed_streaming"`
	FailedCaching    int64 `json:"failed_caching"`
	PendingStreaming int64 `json:"pending_streaming"`
	DamagedTapes     int64 `json:"damaged_tapes"`
}

// RecoveryStats counts failed and pending archives plus damaged tapes.
// Advisory: returns zero values on lookup failure.
func (e *Engine) RecoveryStats(ctx context.Context) *Stats {
	stats := &Stats{}

	archives, err := e.catalog.ListArchives(ctx)
	if err != nil {
		e.log.Warn("Recovery stats lookup failed: %v", err)
		return stats
	}
	stats.TotalArchives = int64(len(archives))
	for _, a := range archives {
		switch a.Status {
		case models.ArchiveStatusStreamingFailed:
			stats.FailedStreaming++
		case models.ArchiveStatusCachingFailed:
			stats.FailedCaching++
		case models.ArchiveStatusStreaming:
			stats.PendingStreaming++
		}
	}

	tapes, err := e.catalog.ListTapes(ctx)
	if err != nil {
		return stats
	}
	for _, t := range tapes {
		if t.Status == models.TapeStatusDamaged {
			stats.DamagedTapes++
		}
	}
	return stats
}
