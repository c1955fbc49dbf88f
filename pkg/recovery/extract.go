package recovery

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/faults"
)

// ExtractResult reports one extraction run.
type ExtractResult struct {
	ArchiveName    string   `json:"archive_name"`
	Position       int      `json:"position"`
	OutputDir      string   `json:"output_dir"`
	ExtractedFiles []string `json:"extracted_files"`
	FileCount      int64    `json:"file_count"`
}

// ExtractArchive restores a complete archive from tape into outDir.
func (e *Engine) ExtractArchive(ctx context.Context, device, name, outDir string, progress ProgressFunc) (*ExtractResult, error) {
	return e.extract(ctx, device, name, nil, outDir, progress)
}

// ExtractFiles restores only the named entries of an archive. Entry
// paths must match the archive's internal paths exactly.
func (e *Engine) ExtractFiles(ctx context.Context, device, name string, files []string, outDir string, progress ProgressFunc) (*ExtractResult, error) {
	if len(files) == 0 {
		return nil, faults.Validation("recovery.extract", "no files specified")
	}
	return e.extract(ctx, device, name, files, outDir, progress)
}

func (e *Engine) extract(ctx context.Context, device, name string, files []string, outDir string, progress ProgressFunc) (*ExtractResult, error) {
	row, err := e.lookupArchive(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, faults.Validation("recovery.extract", "cannot create output directory %q: %v", outDir, err)
	}

	release, err := e.tapes.Locks().Acquire(device, "recover:"+name)
	if err != nil {
		return nil, err
	}
	defer release()

	progress.emit(Progress{Stage: "positioning"})
	if err := e.tapes.SeekToArchive(ctx, device, row.Position); err != nil {
		return nil, err
	}

	extracted, err := e.runExtract(ctx, device, files, outDir, row.FileCount, progress)
	if err != nil {
		return nil, faults.Recovery("recovery.extract", "extraction of %q failed: %v", name, err)
	}

	progress.emit(Progress{Stage: "completed", Done: int64(len(extracted))})
	return &ExtractResult{
		ArchiveName:    name,
		Position:       row.Position,
		OutputDir:      outDir,
		ExtractedFiles: extracted,
		FileCount:      int64(len(extracted)),
	}, nil
}

// runExtract invokes tar against the positioned device and streams per
// entry progress from its verbose output.
func (e *Engine) runExtract(ctx context.Context, source string, files []string, outDir string, total int64, progress ProgressFunc) ([]string, error) {
	args := []string{"-xvf", source, "-C", outDir}
	args = append(args, files...)
	cmd := exec.CommandContext(ctx, e.tapes.Tools().Tar, args...)

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var extracted []string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" {
			continue
		}
		extracted = append(extracted, entry)
		progress.emit(Progress{Stage: "extracting", Entry: entry, Done: int64(len(extracted)), Total: total})
	}
	if err := cmd.Wait(); err != nil {
		return extracted, err
	}
	return extracted, nil
}

func (e *Engine) lookupArchive(ctx context.Context, name string) (*models.Archive, error) {
	row, err := e.catalog.FindArchiveByName(ctx, name)
	if err != nil {
		return nil, faults.Recovery("recovery.extract", "archive %q not found in catalog: %v", name, err)
	}
	if row.Position < 1 {
		return nil, faults.Recovery("recovery.extract", "archive %q has no recorded tape position", name)
	}
	return row, nil
}
