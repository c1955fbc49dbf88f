package recovery

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const directListTimeout = 300 * time.Second

// Listing sources. Catalog listings carry full archive metadata; a
// direct device read yields file names only.
const (
	SourceCatalog    = "catalog"
	SourceDirectRead = "direct_read"
)

// ArchiveEntry is one archive in a content listing.
type ArchiveEntry struct {
	ID        uint      `json:"id,omitempty"`
	Name      string    `json:"name"`
	Position  int       `json:"position,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	FileCount int64     `json:"file_count,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ContentListing describes what a tape holds, as well as it could be
// determined. Check Source before relying on per-archive metadata.
type ContentListing struct {
	Device    string         `json:"device"`
	Source    string         `json:"source"`
	TapeLabel string         `json:"tape_label,omitempty"`
	Archives  []ArchiveEntry `json:"archives"`
	Files     []string       `json:"files,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// ListContents prefers the catalog for a rich listing and falls back to
// reading the tape directly when the device is not cataloged. Never
// returns an error; degraded results carry warnings instead.
func (e *Engine) ListContents(ctx context.Context, device string) *ContentListing {
	listing := &ContentListing{Device: device, Source: SourceCatalog}

	tapeRow, err := e.catalog.FindTapeByDevice(ctx, device)
	if err == nil && tapeRow != nil {
		listing.TapeLabel = tapeRow.Label
		archives, err := e.catalog.ListArchivesByTape(ctx, tapeRow.ID)
		if err != nil {
			listing.Warnings = append(listing.Warnings, fmt.Sprintf("catalog lookup failed: %v", err))
		}
		for _, a := range archives {
			listing.Archives = append(listing.Archives, ArchiveEntry{
				ID:        a.ID,
				Name:      a.Name,
				Position:  a.Position,
				SizeBytes: a.SizeBytes,
				FileCount: a.FileCount,
				Status:    string(a.Status),
				CreatedAt: a.CreatedAt,
			})
		}
		return listing
	}

	e.log.Info("Device %s not cataloged, attempting direct read", device)
	listing.Source = SourceDirectRead
	files, err := e.listDirect(ctx, device)
	if err != nil {
		listing.Warnings = append(listing.Warnings, fmt.Sprintf("direct read failed: %v", err))
		return listing
	}
	listing.Files = files
	listing.Warnings = append(listing.Warnings, "listing read directly from tape, file names only")
	return listing
}

// listDirect reads the archive at the current tape position and returns
// its entry names.
func (e *Engine) listDirect(ctx context.Context, device string) ([]string, error) {
	release, err := e.tapes.Locks().Acquire(device, "list-contents")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.tapes.Rewind(ctx, device); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, directListTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.tapes.Tools().Tar, "-tf", device)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var files []string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			files = append(files, line)
		}
	}
	if err := cmd.Wait(); err != nil {
		return files, err
	}
	return files, nil
}
