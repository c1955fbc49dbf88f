package archive

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/faults"
)

// CreateStreaming runs the streaming-mode pipeline: tar is piped
// directly into dd with no staging file. The catalog row is inserted
// before any bytes move, so an interrupted run leaves a visible
// streaming_to_tape row that the startup sweep marks as failed.
//
// Streamed archives carry no verifiable checksum since the data never
// exists as a single local file.
func (p *Pipeline) CreateStreaming(ctx context.Context, req Request, progress ProgressFunc) (*StreamResult, error) {
	if err := ValidateSource(req.SourcePath); err != nil {
		return nil, err
	}
	if req.TapeLabel == "" {
		return nil, faults.Validation("archive.stream", "no tape label specified")
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
		return nil, faults.Archive("archive.stream", "failed to estimate source: %v", err)
	}
	progress.emit(Progress{Stage: "estimated", BytesTotal: estimate.TotalBytes, FilesTotal: estimate.FileCount})

	release, err := p.tapes.Locks().Acquire(req.Device, "archive:"+name)
	if err != nil {
		return nil, err
	}
	defer release()

	tapeRow, err := p.catalog.AddTapeIfMissing(ctx, req.TapeLabel, req.Device)
	if err != nil {
		return nil, faults.Database("archive.stream", "failed to resolve tape %q: %v", req.TapeLabel, err)
	}

	row := &models.Archive{
		TapeID:       tapeRow.ID,
		Name:         name,
		SourceFolder: req.SourcePath,
		Checksum:     models.ChecksumPending,
		Compression:  req.Compression,
		Status:       models.ArchiveStatusStreaming,
	}
	if err := p.catalog.CreateArchive(ctx, row); err != nil {
		return nil, faults.Database("archive.stream", "failed to record archive: %v", err)
	}

	p.log.Info("Streaming %s directly to %s as archive %d", req.SourcePath, req.Device, row.ID)
	written, streamErr := p.streamToDevice(ctx, req, progress)

	result := &StreamResult{
		ArchiveID:      row.ID,
		Name:           name,
		BytesWritten:   written,
		FilesProcessed: estimate.FileCount,
	}
	if streamErr != nil {
		if failErr := p.catalog.FailArchive(ctx, row.ID, models.ArchiveStatusStreamingFailed); failErr != nil {
			p.log.Error("Failed to mark archive %d as failed: %v", row.ID, failErr)
		}
		result.ErrorMessage = streamErr.Error()
		return result, streamErr
	}

	if err := p.catalog.CompleteArchive(ctx, row.ID, models.ChecksumUnverified, written, estimate.FileCount); err != nil {
		return result, faults.Database("archive.stream", "failed to complete archive record: %v", err)
	}
	result.Success = true

	if req.IndexFiles {
		if err := p.IndexSource(ctx, row.ID, req.SourcePath, progress); err != nil {
			p.log.Warn("File indexing for archive %d failed: %v", row.ID, err)
		}
	}

	progress.emit(Progress{Stage: "completed", BytesDone: written, FilesDone: estimate.FileCount})
	return result, nil
}

// streamToDevice wires tar stdout into dd stdin through a pipe and
// waits for both processes. Returns the byte count dd reported last.
func (p *Pipeline) streamToDevice(ctx context.Context, req Request, progress ProgressFunc) (int64, error) {
	tools := p.tapes.Tools()

	flags := "-cf"
	if req.Compression {
		flags = "-czf"
	}
	parent := filepath.Dir(req.SourcePath)
	base := filepath.Base(req.SourcePath)
	tarCmd := exec.CommandContext(ctx, tools.Tar, flags, "-", "-C", parent, base)

	ddCmd := exec.CommandContext(ctx, tools.DD,
		fmt.Sprintf("of=%s", req.Device),
		fmt.Sprintf("bs=%d", p.cfg.BlockSize),
		"status=progress")

	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, faults.Archive("archive.stream", "failed to create pipe: %v", err)
	}
	tarCmd.Stdout = pw
	ddCmd.Stdin = pr

	ddStderr, err := ddCmd.StderrPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return 0, faults.Archive("archive.stream", "failed to attach to dd: %v", err)
	}

	if err := tarCmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return 0, faults.Archive("archive.stream", "failed to start tar: %v", err)
	}
	if err := ddCmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		tarCmd.Process.Kill()
		tarCmd.Wait()
		return 0, faults.Archive("archive.stream", "failed to start dd: %v", err)
	}

	// The children hold their own copies of the pipe ends. The parent
	// must close its copies or dd never sees EOF.
	pw.Close()
	pr.Close()

	var written int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(ddStderr)
		scanner.Split(scanProgressLines)
		for scanner.Scan() {
			if n, ok := parseTransferBytes(scanner.Text()); ok {
				written = n
				progress.emit(Progress{Stage: "writing", BytesDone: n})
			}
		}
	}()

	tarErr := tarCmd.Wait()
	wg.Wait()
	ddErr := ddCmd.Wait()

	if ctx.Err() != nil {
		return written, faults.Archive("archive.stream", "streaming cancelled: %v", ctx.Err())
	}
	if tarErr != nil {
		return written, faults.Archive("archive.stream", "tar failed: %v", tarErr)
	}
	if ddErr != nil {
		return written, faults.Tape("archive.stream", "dd write to %s failed: %v", req.Device, ddErr)
	}
	return written, nil
}

// scanProgressLines splits on \n or \r. dd redraws its status=progress
// line with a bare carriage return, so a newline-only split would sit
// on the intermediate updates until the final summary.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseTransferBytes extracts the cumulative byte count from a dd
// progress line such as "1048576 bytes (1.0 MB) copied, 1 s, 1.0 MB/s".
func parseTransferBytes(line string) (int64, bool) {
	if !strings.Contains(line, "bytes") {
		return 0, false
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
