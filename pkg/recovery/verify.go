package recovery

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/mwantia/gotape/pkg/tape"
)

const readProbeTimeout = 30 * time.Second

// IntegrityReport combines an accessibility probe, a content-read probe
// and the drive status into one structured summary. VerifyIntegrity
// never fails; unrecoverable conditions land in Errors, soft signals in
// Warnings.
type IntegrityReport struct {
	Device       string   `json:"device"`
	Readable     bool     `json:"readable"`
	HasData      bool     `json:"has_data"`
	ArchiveCount int      `json:"archive_count"`
	FileCount    int64    `json:"file_count"`
	DriveState   string   `json:"drive_state"`
	Warnings     []string `json:"warnings,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// VerifyIntegrity checks that the device is accessible, carries
// readable data, and matches what the catalog expects of it.
func (e *Engine) VerifyIntegrity(ctx context.Context, device string) *IntegrityReport {
	report := &IntegrityReport{Device: device}

	release, err := e.tapes.Locks().Acquire(device, "verify-integrity")
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	defer release()

	status := e.tapes.Status(ctx, device)
	report.DriveState = string(status.State)
	switch status.State {
	case tape.DriveReady:
		report.Readable = true
	case tape.DriveNotAccessible:
		report.Errors = append(report.Errors, fmt.Sprintf("device not accessible: %s", status.Detail))
		return report
	default:
		report.Warnings = append(report.Warnings, fmt.Sprintf("drive reported an error state: %s", status.Detail))
	}

	if err := e.tapes.Rewind(ctx, device); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("rewind failed: %v", err))
	}
	if out, err := e.readProbe(ctx, device); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("content read probe failed: %v", err))
	} else if out == 0 {
		report.Warnings = append(report.Warnings, "device readable but returned no data, tape may be blank")
	} else {
		report.HasData = true
	}

	tapeRow, err := e.catalog.FindTapeByDevice(ctx, device)
	if err != nil || tapeRow == nil {
		report.Warnings = append(report.Warnings, "no catalog entry for this device, content counts unavailable")
		return report
	}
	archives, err := e.catalog.ListArchivesByTape(ctx, tapeRow.ID)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("catalog lookup failed: %v", err))
		return report
	}
	report.ArchiveCount = len(archives)
	for _, a := range archives {
		report.FileCount += a.FileCount
		if !a.Status.Terminal() {
			report.Warnings = append(report.Warnings, fmt.Sprintf("archive %q is still marked %s", a.Name, a.Status))
		}
	}
	return report
}

// readProbe reads a small bounded run of blocks from the device and
// reports how many bytes came back.
func (e *Engine) readProbe(ctx context.Context, device string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, readProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.tapes.Tools().DD,
		fmt.Sprintf("if=%s", device), "of=/dev/null", "bs=1024", "count=10")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("%v: %s", err, string(out))
	}
	for _, line := range splitLines(string(out)) {
		if n, ok := parseCopiedBytes(line); ok {
			return n, nil
		}
	}
	return 0, nil
}
