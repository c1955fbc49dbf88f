package archive

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/faults"
)

const indexBatchSize = 1000

// IndexSource walks the source tree and records every regular file
// under the given archive, storing paths relative to the source root.
// Records are flushed in bounded batches so very large trees do not
// build a single giant insert.
func (p *Pipeline) IndexSource(ctx context.Context, archiveID uint, folder string, progress ProgressFunc) error {
	root, err := filepath.Abs(folder)
	if err != nil {
		return faults.Validation("archive.index", "invalid source folder %q: %v", folder, err)
	}

	var total int64
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			total++
		}
		return nil
	})
	progress.emit(Progress{Stage: "indexing", FilesTotal: total})

	var batch []models.FileRecord
	var indexed int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.catalog.AddFiles(ctx, archiveID, batch); err != nil {
			return faults.Database("archive.index", "failed to store file records: %v", err)
		}
		indexed += int64(len(batch))
		batch = batch[:0]
		progress.emit(Progress{Stage: "indexing", FilesDone: indexed, FilesTotal: total})
		return nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			p.log.Warn("Skipping unreadable path %s: %v", path, walkErr)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			p.log.Warn("Skipping unreadable file %s: %v", path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		batch = append(batch, models.FileRecord{
			ArchiveID:  archiveID,
			Path:       rel,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
			Type:       fileType(path),
		})
		if len(batch) >= indexBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return faults.Archive("archive.index", "indexing interrupted: %v", err)
	}
	return flush()
}

// fileType returns the lowercased extension without the dot, or
// "none" for files without one.
func fileType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "none"
	}
	return strings.TrimPrefix(ext, ".")
}
