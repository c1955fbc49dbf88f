package archive

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/faults"
)

// CreateCached runs the cached-mode pipeline: build a staged tar file,
// checksum it, record the completed archive, then copy the staged file
// to the device in fixed blocks. Any failure removes the staging file
// and leaves no dangling completed record.
func (p *Pipeline) CreateCached(ctx context.Context, req Request, progress ProgressFunc) (*CachedResult, error) {
	if err := ValidateSource(req.SourcePath); err != nil {
		return nil, err
	}
	if req.TapeLabel == "" {
		return nil, faults.Validation("archive.cached", "no tape label specified")
	}

	name := req.Name
	if name == "" {
		name = GenerateName(req.SourcePath, req.Compression, time.Now())
	} else {
		name = NormalizeName(name, req.Compression)
	}

	p.warnRecentArchives(ctx, req.SourcePath, progress)

	estimate, err := EstimateSource(req.SourcePath)
	if err != nil {
		return nil, faults.Archive("archive.cached", "failed to estimate source: %v", err)
	}
	progress.emit(Progress{Stage: "estimated", BytesTotal: estimate.TotalBytes, FilesTotal: estimate.FileCount})

	if err := os.MkdirAll(p.cfg.StagingDir, 0755); err != nil {
		return nil, faults.Archive("archive.cached", "failed to create staging directory: %v", err)
	}
	stagingPath := filepath.Join(p.cfg.StagingDir, name)

	p.log.Info("Creating cached archive %s from %s", stagingPath, req.SourcePath)
	if err := buildTarball(ctx, req.SourcePath, stagingPath, req.Compression, estimate, progress); err != nil {
		os.Remove(stagingPath)
		return nil, err
	}

	checksum, err := ChecksumFile(stagingPath)
	if err != nil {
		os.Remove(stagingPath)
		return nil, faults.Archive("archive.cached", "failed to checksum staged archive: %v", err)
	}
	progress.emit(Progress{Stage: "checksummed", Message: checksum})

	info, err := os.Stat(stagingPath)
	if err != nil {
		os.Remove(stagingPath)
		return nil, faults.Archive("archive.cached", "failed to stat staged archive: %v", err)
	}

	// Exclusive hold on the device covers the catalog insert and the
	// block copy.
	release, err := p.tapes.Locks().Acquire(req.Device, "archive:"+name)
	if err != nil {
		os.Remove(stagingPath)
		return nil, err
	}
	defer release()

	result, err := p.recordAndCopy(ctx, req.Device, req.TapeLabel, name, req.SourcePath, req.Compression, stagingPath, checksum, info.Size(), estimate.FileCount, progress)
	if err != nil {
		os.Remove(stagingPath)
		return nil, err
	}

	if req.IndexFiles {
		if err := p.IndexSource(ctx, result.ArchiveID, req.SourcePath, progress); err != nil {
			p.log.Warn("File indexing for archive %d failed: %v", result.ArchiveID, err)
		}
	}

	if req.KeepStaging {
		result.StagingPath = stagingPath
	} else {
		os.Remove(stagingPath)
	}

	progress.emit(Progress{Stage: "completed", BytesDone: result.BytesToTape, FilesDone: result.FileCount})
	return result, nil
}

// DuplicateToTape writes an already staged archive to a second tape,
// recording a second completed archive row. The staging file must have
// been kept by a prior CreateCached call with KeepStaging set.
func (p *Pipeline) DuplicateToTape(ctx context.Context, prior *CachedResult, device, tapeLabel string, progress ProgressFunc) (*CachedResult, error) {
	if prior == nil || prior.StagingPath == "" {
		return nil, faults.Validation("archive.duplicate", "no staged archive available for a second copy")
	}
	if _, err := os.Stat(prior.StagingPath); err != nil {
		return nil, faults.Validation("archive.duplicate", "staged archive missing: %v", err)
	}

	release, err := p.tapes.Locks().Acquire(device, "archive:"+prior.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := p.recordAndCopy(ctx, device, tapeLabel, prior.Name, prior.SourcePath, prior.Compression, prior.StagingPath, prior.Checksum, prior.SizeBytes, prior.FileCount, progress)
	if err != nil {
		return nil, err
	}
	result.StagingPath = prior.StagingPath
	return result, nil
}

// recordAndCopy inserts the completed catalog record and copies the
// staged file to the device. A copy failure removes the record again so
// no completed row survives a failed write.
func (p *Pipeline) recordAndCopy(ctx context.Context, device, tapeLabel, name, sourceFolder string, compression bool, stagingPath, checksum string, sizeBytes, fileCount int64, progress ProgressFunc) (*CachedResult, error) {
	tapeRow, err := p.catalog.AddTapeIfMissing(ctx, tapeLabel, device)
	if err != nil {
		return nil, faults.Database("archive.cached", "failed to resolve tape %q: %v", tapeLabel, err)
	}

	row := &models.Archive{
		TapeID:       tapeRow.ID,
		Name:         name,
		SourceFolder: sourceFolder,
		Checksum:     models.ChecksumPending,
		Compression:  compression,
		Status:       models.ArchiveStatusStreaming,
	}
	if err := p.catalog.CreateArchive(ctx, row); err != nil {
		return nil, faults.Database("archive.cached", "failed to record archive: %v", err)
	}
	if err := p.catalog.CompleteArchive(ctx, row.ID, checksum, sizeBytes, fileCount); err != nil {
		p.catalog.FailArchive(ctx, row.ID, models.ArchiveStatusCachingFailed)
		return nil, faults.Database("archive.cached", "failed to complete archive record: %v", err)
	}

	progress.emit(Progress{Stage: "writing", BytesTotal: sizeBytes})
	written, err := p.tapes.WriteFile(ctx, device, stagingPath, p.cfg.BlockSize, func(done, total int64) {
		progress.emit(Progress{Stage: "writing", BytesDone: done, BytesTotal: total})
	})
	if err != nil {
		if delErr := p.catalog.DeleteArchive(ctx, row.ID); delErr != nil {
			p.log.Error("Failed to remove archive record %d after write failure: %v", row.ID, delErr)
		}
		return nil, err
	}

	return &CachedResult{
		ArchiveID:   row.ID,
		TapeID:      tapeRow.ID,
		Name:        name,
		SourcePath:  sourceFolder,
		Compression: compression,
		Checksum:    checksum,
		SizeBytes:   sizeBytes,
		FileCount:   fileCount,
		BytesToTape: written,
	}, nil
}
