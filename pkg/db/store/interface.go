package store

import (
	"context"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
)

// CatalogStore defines the durable catalog of tapes, archives and files,
// independent of physical tape state.
type CatalogStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Tape operations
	CreateTape(ctx context.Context, tape *models.Tape) error
	GetTape(ctx context.Context, id uint) (*models.Tape, error)
	FindTapeByLabel(ctx context.Context, label string) (*models.Tape, error)
	FindTapeByDevice(ctx context.Context, device string) (*models.Tape, error)
	ListTapes(ctx context.Context) ([]models.Tape, error)
	UpdateTape(ctx context.Context, tape *models.Tape) error
	UpdateTapeStatus(ctx context.Context, id uint, status models.TapeStatus, notes string) error
	DeleteTape(ctx context.Context, id uint) error
	AddTapeIfMissing(ctx context.Context, label, device string) (*models.Tape, error)

	// Archive operations
	CreateArchive(ctx context.Context, archive *models.Archive) error
	GetArchive(ctx context.Context, id uint) (*models.Archive, error)
	FindArchiveByName(ctx context.Context, name string) (*models.Archive, error)
	FindArchivesByFolder(ctx context.Context, folder string) ([]models.Archive, error)
	ListArchives(ctx context.Context) ([]models.Archive, error)
	ListArchivesByTape(ctx context.Context, tapeID uint) ([]models.Archive, error)
	CompleteArchive(ctx context.Context, id uint, checksum string, sizeBytes, fileCount int64) error
	FailArchive(ctx context.Context, id uint, status models.ArchiveStatus) error
	FailStaleStreaming(ctx context.Context) (int64, error)
	DeleteArchive(ctx context.Context, id uint) error

	// File operations
	AddFiles(ctx context.Context, archiveID uint, files []models.FileRecord) error
	ArchiveFiles(ctx context.Context, archiveID uint, limit int) ([]models.FileRecord, error)
	CountFiles(ctx context.Context, archiveID uint) (int64, error)

	// Search
	SearchFiles(ctx context.Context, filter SearchFilter) ([]FileHit, error)
	RegexSearchFiles(ctx context.Context, pattern string, filter SearchFilter) ([]FileHit, error)
	FindDuplicateFiles(ctx context.Context, criteria DuplicateCriteria) ([]DuplicateGroup, error)

	// Statistics
	Stats(ctx context.Context) (*CatalogStats, error)

	// Import / export
	Snapshot(ctx context.Context) (*CatalogSnapshot, error)
	ImportSnapshot(ctx context.Context, snapshot *CatalogSnapshot) (*ImportSummary, error)
	ExportCSV(ctx context.Context, dir string) error
	ImportCSV(ctx context.Context, dir string) (*ImportSummary, error)
	BackupTo(ctx context.Context, path string) error
}

// SearchFilter narrows a file search. Zero-value fields are ignored so
// filters compose freely.
type SearchFilter struct {
	Query     string // substring match on the file path
	FileType  string
	TapeID    uint
	ArchiveID uint
	MinSize   int64
	MaxSize   int64
	DateFrom  time.Time
	DateTo    time.Time
	Limit     int
}

// FileHit is a search result joined across the three catalog tables.
type FileHit struct {
	FileID      uint      `json:"file_id"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	ModifiedAt  time.Time `json:"modified_at"`
	Type        string    `json:"type"`
	ArchiveID   uint      `json:"archive_id"`
	ArchiveName string    `json:"archive_name"`
	TapeID      uint      `json:"tape_id"`
	TapeLabel   string    `json:"tape_label"`
	TapeDevice  string    `json:"tape_device"`
}

// DuplicateCriteria selects the grouping key for duplicate detection.
type DuplicateCriteria string

const (
	DuplicatesByName        DuplicateCriteria = "name"
	DuplicatesBySize        DuplicateCriteria = "size"
	DuplicatesByNameAndSize DuplicateCriteria = "name_and_size"
)

// DuplicateGroup is one set of files sharing a grouping key.
type DuplicateGroup struct {
	Path      string `json:"path,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Count     int64  `json:"count"`
}

// CatalogStats aggregates catalog-wide numbers for reporting. Advisory
// only: callers receive zero values instead of errors on failure.
type CatalogStats struct {
	TotalTapes        int64            `json:"total_tapes"`
	TotalArchives     int64            `json:"total_archives"`
	TotalFiles        int64            `json:"total_files"`
	TotalFileBytes    int64            `json:"total_file_bytes"`
	TotalArchiveBytes int64            `json:"total_archive_bytes"`
	TotalTapeBytes    int64            `json:"total_tape_bytes"`
	AvgFilesPerArch   float64          `json:"avg_files_per_archive"`
	FileTypes         map[string]int64 `json:"file_types"`
	LargestFiles      []FileHit        `json:"largest_files"`
	RecentArchives    int64            `json:"recent_archives"`
}

// ImportSummary reports what an import actually changed.
type ImportSummary struct {
	TapesImported    int `json:"tapes_imported"`
	ArchivesImported int `json:"archives_imported"`
	FilesImported    int `json:"files_imported"`
	Skipped          int `json:"skipped"`
}

// Total returns the number of rows the import created.
func (s *ImportSummary) Total() int {
	return s.TapesImported + s.ArchivesImported + s.FilesImported
}
