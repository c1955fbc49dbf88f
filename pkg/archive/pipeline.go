package archive

import (
	"context"
	"time"

	config "github.com/mwantia/gotape/internal/config/server"
	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/mwantia/gotape/pkg/tape"
)

// Progress carries incremental status for long-running archive
// operations. Fields not relevant to the current stage stay zero.
type Progress struct {
	Stage      string `json:"stage"`
	Message    string `json:"message,omitempty"`
	BytesDone  int64  `json:"bytes_done,omitempty"`
	BytesTotal int64  `json:"bytes_total,omitempty"`
	FilesDone  int64  `json:"files_done,omitempty"`
	FilesTotal int64  `json:"files_total,omitempty"`
}

// ProgressFunc receives Progress updates; nil callbacks are allowed
// everywhere.
type ProgressFunc func(Progress)

func (fn ProgressFunc) emit(p Progress) {
	if fn != nil {
		fn(p)
	}
}

// Request describes one archive job, cached or streaming.
type Request struct {
	SourcePath  string
	Device      string
	TapeLabel   string
	Name        string // optional override; generated when empty
	Compression bool
	IndexFiles  bool

	// KeepStaging leaves the staged file in place after a successful
	// run so a second physical copy can be written from it.
	KeepStaging bool
}

// CachedResult is the outcome of a cached-mode archive run.
type CachedResult struct {
	ArchiveID   uint   `json:"archive_id"`
	TapeID      uint   `json:"tape_id"`
	Name        string `json:"name"`
	SourcePath  string `json:"source_path"`
	Compression bool   `json:"compression"`
	StagingPath string `json:"staging_path,omitempty"`
	Checksum    string `json:"checksum"`
	SizeBytes   int64  `json:"size_bytes"`
	FileCount   int64  `json:"file_count"`
	BytesToTape int64  `json:"bytes_to_tape"`
}

// StreamResult is the outcome of a streaming-mode archive run.
type StreamResult struct {
	Success        bool   `json:"success"`
	ArchiveID      uint   `json:"archive_id"`
	Name           string `json:"name"`
	BytesWritten   int64  `json:"bytes_written"`
	FilesProcessed int64  `json:"files_processed"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Pipeline builds tar archives from source trees and writes them to
// tape, keeping the catalog store in step at every transition.
type Pipeline struct {
	catalog store.CatalogStore
	tapes   *tape.Manager
	cfg     config.TapeServerConfig
	log     log.LoggerService
}

func NewPipeline(catalog store.CatalogStore, tapes *tape.Manager, cfg config.TapeServerConfig, logger log.LoggerService) *Pipeline {
	return &Pipeline{
		catalog: catalog,
		tapes:   tapes,
		cfg:     cfg,
		log:     logger.Named("archive"),
	}
}

func (p *Pipeline) capacity() int64 {
	if p.cfg.CapacityBytes > 0 {
		return p.cfg.CapacityBytes
	}
	return 6_000_000_000_000
}

// recentArchiveWindow is how recently the same source folder must have
// been archived to trigger a duplicate warning before a new run.
const recentArchiveWindow = 7 * 24 * time.Hour

// warnRecentArchives flags completed archives of the same source folder
// written within the duplicate window. Advisory only, never blocks.
func (p *Pipeline) warnRecentArchives(ctx context.Context, folder string, progress ProgressFunc) {
	archives, err := p.catalog.FindArchivesByFolder(ctx, folder)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-recentArchiveWindow)
	for _, a := range archives {
		if a.Status != models.ArchiveStatusCompleted || a.CreatedAt.Before(cutoff) {
			continue
		}
		p.log.Warn("Source %s was already archived as %s on %s", folder, a.Name, a.CreatedAt.Format("2006-01-02"))
		progress.emit(Progress{Stage: "duplicate_warning", Message: a.Name})
	}
}
