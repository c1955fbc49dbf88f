package recovery

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const damageProbeTimeout = 30 * time.Second

// DamageClass is a heuristic classification of a read failure. The
// classifier inspects tool diagnostics with substring matching; treat
// the result as advisory, not exact.
type DamageClass string

const (
	DamageNone        DamageClass = "none"
	DamageMedia       DamageClass = "media_error"
	DamageDevice      DamageClass = "device_error"
	DamagePositioning DamageClass = "positioning_error"
	DamageTimeout     DamageClass = "timeout_error"
	DamageUnknown     DamageClass = "unknown"
)

// DamageReport summarizes a damage probe.
type DamageReport struct {
	Device          string      `json:"device"`
	IsDamaged       bool        `json:"is_damaged"`
	DamageType      DamageClass `json:"damage_type"`
	RecoverableData bool        `json:"recoverable_data"`
	Detail          string      `json:"detail,omitempty"`
	Remediation     []string    `json:"remediation,omitempty"`
}

// DetectDamage reads a small bounded run of raw blocks and classifies
// any failure. Read failures come back classified in the report, not
// as errors; an error is returned only when the device is held by
// another operation and could not be probed at all.
func (e *Engine) DetectDamage(ctx context.Context, device string) (*DamageReport, error) {
	report := &DamageReport{Device: device, DamageType: DamageNone, RecoverableData: true}

	release, err := e.tapes.Locks().Acquire(device, "damage-scan")
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, damageProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.tapes.Tools().DD,
		fmt.Sprintf("if=%s", device), "of=/dev/null", "bs=1024", "count=10")
	out, err := cmd.CombinedOutput()
	if err == nil {
		return report, nil
	}

	diag := string(out)
	report.IsDamaged = true
	report.Detail = strings.TrimSpace(diag)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		report.DamageType = DamageTimeout
	} else {
		report.DamageType = classifyDiagnostics(diag + " " + err.Error())
	}
	report.RecoverableData = report.DamageType == DamagePositioning || report.DamageType == DamageUnknown
	report.Remediation = remediationFor(report.DamageType)

	e.log.Warn("Damage probe on %s classified as %s", device, report.DamageType)
	return report, nil
}

// classifyDiagnostics maps diagnostic text onto a damage class by
// substring inspection, with an explicit unknown fallback.
func classifyDiagnostics(diag string) DamageClass {
	lower := strings.ToLower(diag)
	switch {
	case strings.Contains(lower, "input/output error"),
		strings.Contains(lower, "read error"),
		strings.Contains(lower, "medium error"),
		strings.Contains(lower, "crc"):
		return DamageMedia
	case strings.Contains(lower, "no such device"),
		strings.Contains(lower, "no such file"),
		strings.Contains(lower, "device not configured"),
		strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "no medium"):
		return DamageDevice
	case strings.Contains(lower, "cannot seek"),
		strings.Contains(lower, "seek error"),
		strings.Contains(lower, "illegal seek"),
		strings.Contains(lower, "blank check"):
		return DamagePositioning
	case strings.Contains(lower, "timed out"),
		strings.Contains(lower, "timeout"):
		return DamageTimeout
	default:
		return DamageUnknown
	}
}

func remediationFor(class DamageClass) []string {
	switch class {
	case DamageMedia:
		return []string{
			"clean the drive heads and retry",
			"attempt partial recovery to salvage readable blocks",
			"retire the tape after recovering what remains",
		}
	case DamageDevice:
		return []string{
			"check the device path and cabling",
			"verify the tape is loaded and the drive is powered",
			"try a different drive with the same tape",
		}
	case DamagePositioning:
		return []string{
			"rewind to beginning of tape and retry",
			"retry with positioning strategies before assuming data loss",
		}
	case DamageTimeout:
		return []string{
			"retry with a longer timeout",
			"check whether the drive is still repositioning",
		}
	case DamageUnknown:
		return []string{
			"inspect the drive diagnostics manually",
			"attempt partial recovery before retiring the tape",
		}
	default:
		return nil
	}
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// parseCopiedBytes reads the byte count from a dd summary line such as
// "10240 bytes (10 kB) copied, 0.01 s, 1.0 MB/s".
func parseCopiedBytes(line string) (int64, bool) {
	if !strings.Contains(line, "bytes") || !strings.Contains(line, "copied") {
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
