package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
	"gorm.io/gorm"
)

// exportFileLimit caps the per-archive file list in a snapshot. Exports
// exceeding it set FilesTruncated; importers must check the flag before
// assuming the list is complete.
const exportFileLimit = 1000

const snapshotVersion = "2.0"

// CatalogSnapshot is the portable tape→archives→files tree produced by
// Snapshot and accepted by ImportSnapshot.
type CatalogSnapshot struct {
	ExportDate time.Time      `json:"export_date"`
	Version    string         `json:"version"`
	Tapes      []TapeSnapshot `json:"tapes"`
}

type TapeSnapshot struct {
	Label          string            `json:"label"`
	Device         string            `json:"device"`
	Status         models.TapeStatus `json:"status"`
	TotalSizeBytes int64             `json:"total_size_bytes"`
	Compression    bool              `json:"compression"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastWritten    *time.Time        `json:"last_written,omitempty"`
	Archives       []ArchiveSnapshot `json:"archives"`
}

type ArchiveSnapshot struct {
	Name         string               `json:"name"`
	SourceFolder string               `json:"source_folder"`
	SizeBytes    int64                `json:"size_bytes"`
	FileCount    int64                `json:"file_count"`
	Checksum     string               `json:"checksum,omitempty"`
	Compression  bool                 `json:"compression"`
	Position     int                  `json:"position"`
	Status       models.ArchiveStatus `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`

	Files          []FileSnapshot `json:"files"`
	FilesTruncated bool           `json:"files_truncated"`
	TotalFiles     int64          `json:"total_files"`
}

type FileSnapshot struct {
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	Type       string    `json:"type,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
}

// Snapshot exports the whole catalog as a portable tree.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	snapshot := &CatalogSnapshot{
		ExportDate: time.Now().UTC(),
		Version:    snapshotVersion,
	}

	tapes, err := s.ListTapes(ctx)
	if err != nil {
		return nil, err
	}

	for _, tape := range tapes {
		ts := TapeSnapshot{
			Label:          tape.Label,
			Device:         tape.Device,
			Status:         tape.Status,
			TotalSizeBytes: tape.TotalSizeBytes,
			Compression:    tape.Compression,
			Notes:          tape.Notes,
			CreatedAt:      tape.CreatedAt,
			LastWritten:    tape.LastWritten,
			Archives:       []ArchiveSnapshot{},
		}

		archives, err := s.ListArchivesByTape(ctx, tape.ID)
		if err != nil {
			return nil, err
		}

		for _, archive := range archives {
			total, err := s.CountFiles(ctx, archive.ID)
			if err != nil {
				return nil, err
			}

			files, err := s.ArchiveFiles(ctx, archive.ID, exportFileLimit)
			if err != nil {
				return nil, err
			}

			as := ArchiveSnapshot{
				Name:           archive.Name,
				SourceFolder:   archive.SourceFolder,
				SizeBytes:      archive.SizeBytes,
				FileCount:      archive.FileCount,
				Checksum:       archive.Checksum,
				Compression:    archive.Compression,
				Position:       archive.Position,
				Status:         archive.Status,
				CreatedAt:      archive.CreatedAt,
				Files:          make([]FileSnapshot, 0, len(files)),
				FilesTruncated: total > exportFileLimit,
				TotalFiles:     total,
			}
			for _, file := range files {
				as.Files = append(as.Files, FileSnapshot{
					Path:       file.Path,
					SizeBytes:  file.SizeBytes,
					ModifiedAt: file.ModifiedAt,
					Type:       file.Type,
					Checksum:   file.Checksum,
				})
			}
			ts.Archives = append(ts.Archives, as)
		}

		snapshot.Tapes = append(snapshot.Tapes, ts)
	}

	return snapshot, nil
}

// ImportSnapshot merges a snapshot into the catalog. Entities whose
// unique key (tape label, archive name) already exists are skipped, so
// importing the same snapshot twice adds zero rows. File lists flagged
// as truncated are never imported.
func (s *SQLiteStore) ImportSnapshot(ctx context.Context, snapshot *CatalogSnapshot) (*ImportSummary, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("nil snapshot")
	}

	summary := &ImportSummary{}

	for _, ts := range snapshot.Tapes {
		tape, err := s.FindTapeByLabel(ctx, ts.Label)
		switch {
		case err == nil:
			summary.Skipped++
		case errors.Is(err, gorm.ErrRecordNotFound):
			tape = &models.Tape{
				Label:          ts.Label,
				Device:         ts.Device,
				Status:         ts.Status,
				TotalSizeBytes: ts.TotalSizeBytes,
				Compression:    ts.Compression,
				Notes:          ts.Notes,
				CreatedAt:      ts.CreatedAt,
				LastWritten:    ts.LastWritten,
			}
			if err := s.CreateTape(ctx, tape); err != nil {
				return summary, err
			}
			summary.TapesImported++
		default:
			return summary, err
		}

		for _, as := range ts.Archives {
			if _, err := s.FindArchiveByName(ctx, as.Name); err == nil {
				summary.Skipped++
				continue
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return summary, err
			}

			archive := &models.Archive{
				TapeID:       tape.ID,
				Name:         as.Name,
				SourceFolder: as.SourceFolder,
				SizeBytes:    as.SizeBytes,
				FileCount:    as.FileCount,
				Checksum:     as.Checksum,
				Compression:  as.Compression,
				Position:     as.Position,
				Status:       as.Status,
				CreatedAt:    as.CreatedAt,
			}
			if err := s.restoreArchive(ctx, archive); err != nil {
				return summary, err
			}
			summary.ArchivesImported++

			if as.FilesTruncated || len(as.Files) == 0 {
				continue
			}

			files := make([]models.FileRecord, 0, len(as.Files))
			for _, fs := range as.Files {
				files = append(files, models.FileRecord{
					Path:       fs.Path,
					SizeBytes:  fs.SizeBytes,
					ModifiedAt: fs.ModifiedAt,
					Type:       fs.Type,
					Checksum:   fs.Checksum,
				})
			}
			if err := s.AddFiles(ctx, archive.ID, files); err != nil {
				return summary, err
			}
			summary.FilesImported += len(files)
		}
	}

	return summary, nil
}

// restoreArchive inserts an imported archive exactly as recorded.
// Positions address physical file marks and may contain gaps left by
// deletions, so the next-position assignment done for fresh writes
// must not touch them. The recorded creation time is kept for the
// same reason: searches and retention windows refer to when the
// archive was written, not when it was re-imported.
func (s *SQLiteStore) restoreArchive(ctx context.Context, archive *models.Archive) error {
	return s.db.WithContext(ctx).Create(archive).Error
}

var (
	tapeCSVHeader    = []string{"label", "device", "status", "total_size_bytes", "compression", "created_at", "last_written", "notes"}
	archiveCSVHeader = []string{"tape_label", "name", "source_folder", "size_bytes", "file_count", "checksum", "compression", "position", "status", "created_at"}
	fileCSVHeader    = []string{"archive_name", "path", "size_bytes", "modified_at", "type", "checksum"}
)

// ExportCSV writes the catalog as flat tapes/archives/files CSV files
// into dir.
func (s *SQLiteStore) ExportCSV(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tapes, err := s.ListTapes(ctx)
	if err != nil {
		return err
	}

	tapeRows := [][]string{}
	archiveRows := [][]string{}
	fileRows := [][]string{}

	for _, tape := range tapes {
		lastWritten := ""
		if tape.LastWritten != nil {
			lastWritten = tape.LastWritten.UTC().Format(time.RFC3339)
		}
		tapeRows = append(tapeRows, []string{
			tape.Label,
			tape.Device,
			string(tape.Status),
			strconv.FormatInt(tape.TotalSizeBytes, 10),
			strconv.FormatBool(tape.Compression),
			tape.CreatedAt.UTC().Format(time.RFC3339),
			lastWritten,
			tape.Notes,
		})

		archives, err := s.ListArchivesByTape(ctx, tape.ID)
		if err != nil {
			return err
		}
		for _, archive := range archives {
			archiveRows = append(archiveRows, []string{
				tape.Label,
				archive.Name,
				archive.SourceFolder,
				strconv.FormatInt(archive.SizeBytes, 10),
				strconv.FormatInt(archive.FileCount, 10),
				archive.Checksum,
				strconv.FormatBool(archive.Compression),
				strconv.Itoa(archive.Position),
				string(archive.Status),
				archive.CreatedAt.UTC().Format(time.RFC3339),
			})

			files, err := s.ArchiveFiles(ctx, archive.ID, 0)
			if err != nil {
				return err
			}
			for _, file := range files {
				fileRows = append(fileRows, []string{
					archive.Name,
					file.Path,
					strconv.FormatInt(file.SizeBytes, 10),
					file.ModifiedAt.UTC().Format(time.RFC3339),
					file.Type,
					file.Checksum,
				})
			}
		}
	}

	if err := writeCSV(filepath.Join(dir, "tapes.csv"), tapeCSVHeader, tapeRows); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, "archives.csv"), archiveCSVHeader, archiveRows); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, "files.csv"), fileCSVHeader, fileRows)
}

// ImportCSV reads the flat CSV layout produced by ExportCSV. Skips
// entities whose unique key already exists, same as ImportSnapshot.
func (s *SQLiteStore) ImportCSV(ctx context.Context, dir string) (*ImportSummary, error) {
	summary := &ImportSummary{}

	tapeRows, err := readCSV(filepath.Join(dir, "tapes.csv"))
	if err != nil && !os.IsNotExist(err) {
		return summary, err
	}
	for _, row := range tapeRows {
		label := row["label"]
		if label == "" {
			continue
		}
		if _, err := s.FindTapeByLabel(ctx, label); err == nil {
			summary.Skipped++
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return summary, err
		}

		size, _ := strconv.ParseInt(row["total_size_bytes"], 10, 64)
		compression, _ := strconv.ParseBool(row["compression"])
		tape := &models.Tape{
			Label:          label,
			Device:         row["device"],
			Status:         models.TapeStatus(row["status"]),
			TotalSizeBytes: size,
			Compression:    compression,
			Notes:          row["notes"],
		}
		if created, err := time.Parse(time.RFC3339, row["created_at"]); err == nil {
			tape.CreatedAt = created
		}
		if lw, err := time.Parse(time.RFC3339, row["last_written"]); err == nil {
			tape.LastWritten = &lw
		}
		if err := s.CreateTape(ctx, tape); err != nil {
			return summary, err
		}
		summary.TapesImported++
	}

	archiveRows, err := readCSV(filepath.Join(dir, "archives.csv"))
	if err != nil && !os.IsNotExist(err) {
		return summary, err
	}
	imported := map[string]uint{}
	for _, row := range archiveRows {
		name := row["name"]
		if name == "" {
			continue
		}
		if _, err := s.FindArchiveByName(ctx, name); err == nil {
			summary.Skipped++
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return summary, err
		}

		tape, err := s.FindTapeByLabel(ctx, row["tape_label"])
		if err != nil {
			summary.Skipped++
			continue
		}

		size, _ := strconv.ParseInt(row["size_bytes"], 10, 64)
		count, _ := strconv.ParseInt(row["file_count"], 10, 64)
		compression, _ := strconv.ParseBool(row["compression"])
		position, _ := strconv.Atoi(row["position"])
		archive := &models.Archive{
			TapeID:       tape.ID,
			Name:         name,
			SourceFolder: row["source_folder"],
			SizeBytes:    size,
			FileCount:    count,
			Checksum:     row["checksum"],
			Compression:  compression,
			Position:     position,
			Status:       models.ArchiveStatus(row["status"]),
		}
		if created, err := time.Parse(time.RFC3339, row["created_at"]); err == nil {
			archive.CreatedAt = created
		}
		if err := s.restoreArchive(ctx, archive); err != nil {
			return summary, err
		}
		imported[name] = archive.ID
		summary.ArchivesImported++
	}

	fileRows, err := readCSV(filepath.Join(dir, "files.csv"))
	if err != nil && !os.IsNotExist(err) {
		return summary, err
	}
	batches := map[uint][]models.FileRecord{}
	for _, row := range fileRows {
		// Only files belonging to archives created by this import; the
		// files table has no natural unique key for dedup.
		archiveID, ok := imported[row["archive_name"]]
		if !ok {
			summary.Skipped++
			continue
		}
		size, _ := strconv.ParseInt(row["size_bytes"], 10, 64)
		modified, _ := time.Parse(time.RFC3339, row["modified_at"])
		batches[archiveID] = append(batches[archiveID], models.FileRecord{
			Path:       row["path"],
			SizeBytes:  size,
			ModifiedAt: modified,
			Type:       row["type"],
			Checksum:   row["checksum"],
		})
	}
	for archiveID, files := range batches {
		if err := s.AddFiles(ctx, archiveID, files); err != nil {
			return summary, err
		}
		summary.FilesImported += len(files)
	}

	return summary, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := map[string]string{}
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteSnapshotFile writes a snapshot as indented JSON.
func WriteSnapshotFile(snapshot *CatalogSnapshot, path string) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadSnapshotFile loads a snapshot previously written by
// WriteSnapshotFile.
func ReadSnapshotFile(path string) (*CatalogSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshot CatalogSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snapshot, nil
}
