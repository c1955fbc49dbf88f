package recovery

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Partial recovery dumps a bounded run of raw blocks while tolerating
// read errors, then extracts from the dump instead of the device.
const (
	partialDumpBlocks  = 10000
	partialDumpTimeout = 30 * time.Minute
)

// PartialResult lists what a tolerant recovery managed to save.
type PartialResult struct {
	ArchiveName     string   `json:"archive_name"`
	OutputDir       string   `json:"output_dir"`
	Method          string   `json:"method"`
	DumpBytes       int64    `json:"dump_bytes"`
	RecoveredFiles  []string `json:"recovered_files"`
	FailedFiles     []string `json:"failed_files"`
	RecoveryPercent float64  `json:"recovery_percent"`
}

// AttemptPartialRecovery salvages what it can from a damaged archive.
// It dumps raw blocks with errors zero-filled, tries a normal extract
// against the dump, and falls back to extracting each entry on its own
// so one corrupt entry does not abort the rest.
func (e *Engine) AttemptPartialRecovery(ctx context.Context, device, name, outDir string, progress ProgressFunc) (*PartialResult, error) {
	row, err := e.lookupArchive(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	release, err := e.tapes.Locks().Acquire(device, "partial-recovery:"+name)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.tapes.SeekToArchive(ctx, device, row.Position); err != nil {
		e.log.Warn("Seek before partial recovery failed, reading from current position: %v", err)
	}

	result := &PartialResult{ArchiveName: name, OutputDir: outDir}

	progress.emit(Progress{Stage: "dumping"})
	dumpPath := filepath.Join(outDir, name+".partial.dump")
	defer os.Remove(dumpPath)
	result.DumpBytes, err = e.dumpBlocks(ctx, device, dumpPath)
	if err != nil {
		e.log.Warn("Block dump from %s ended with errors after %d bytes: %v", device, result.DumpBytes, err)
	}
	if result.DumpBytes == 0 {
		result.Method = "none"
		return result, nil
	}

	progress.emit(Progress{Stage: "extracting"})
	if recovered, err := e.extractDump(ctx, dumpPath, outDir, nil); err == nil {
		result.Method = "full_extract"
		result.RecoveredFiles = recovered
		result.RecoveryPercent = 100
		return result, nil
	}

	// Per-entry fallback: list what the dump still describes and pull
	// each entry independently.
	result.Method = "per_entry"
	entries := e.listDump(ctx, dumpPath)
	for i, entry := range entries {
		if strings.HasSuffix(entry, "/") {
			continue
		}
		progress.emit(Progress{Stage: "extracting", Entry: entry, Done: int64(i + 1), Total: int64(len(entries))})
		if _, err := e.extractDump(ctx, dumpPath, outDir, []string{entry}); err != nil {
			result.FailedFiles = append(result.FailedFiles, entry)
			continue
		}
		result.RecoveredFiles = append(result.RecoveredFiles, entry)
	}

	if total := len(result.RecoveredFiles) + len(result.FailedFiles); total > 0 {
		result.RecoveryPercent = float64(len(result.RecoveredFiles)) / float64(total) * 100
	}
	return result, nil
}

// dumpBlocks copies a bounded number of raw blocks from the device,
// zero-filling unreadable ones so the dump keeps its alignment.
func (e *Engine) dumpBlocks(ctx context.Context, device, dumpPath string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, partialDumpTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.tapes.Tools().DD,
		fmt.Sprintf("if=%s", device),
		fmt.Sprintf("of=%s", dumpPath),
		"bs=1024",
		fmt.Sprintf("count=%d", partialDumpBlocks),
		"conv=noerror,sync")
	out, err := cmd.CombinedOutput()

	var written int64
	for _, line := range splitLines(string(out)) {
		if n, ok := parseCopiedBytes(line); ok {
			written = n
		}
	}
	if written == 0 {
		if info, statErr := os.Stat(dumpPath); statErr == nil {
			written = info.Size()
		}
	}
	return written, err
}

func (e *Engine) extractDump(ctx context.Context, dumpPath, outDir string, files []string) ([]string, error) {
	args := []string{"-xvf", dumpPath, "-C", outDir}
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
		if entry := strings.TrimSpace(scanner.Text()); entry != "" {
			extracted = append(extracted, entry)
		}
	}
	if err := cmd.Wait(); err != nil {
		return extracted, err
	}
	return extracted, nil
}

// listDump lists entries of a possibly truncated dump, keeping whatever
// tar reported before it gave up.
func (e *Engine) listDump(ctx context.Context, dumpPath string) []string {
	cmd := exec.CommandContext(ctx, e.tapes.Tools().Tar, "-tf", dumpPath)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil
	}
	if err := cmd.Start(); err != nil {
		return nil
	}

	var entries []string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		if entry := strings.TrimSpace(scanner.Text()); entry != "" {
			entries = append(entries, entry)
		}
	}
	cmd.Wait()
	return entries
}
