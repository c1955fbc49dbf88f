package tape

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/gotape/pkg/faults"
	"github.com/mwantia/gotape/pkg/log"
)

// Timeouts bound the mechanical latency of drive commands. Failures are
// reported, never retried here; retry policy lives in the recovery
// engine.
const (
	statusTimeout = 10 * time.Second
	ejectTimeout  = 30 * time.Second
	rewindTimeout = 60 * time.Second
	seekTimeout   = 120 * time.Second
)

// DriveState classifies the result of a status probe.
type DriveState string

const (
	DriveReady         DriveState = "ready"
	DriveError         DriveState = "error"
	DriveNotAccessible DriveState = "not_accessible"
)

// DriveStatus is the structured result of a status probe.
type DriveStatus struct {
	Device string     `json:"device"`
	State  DriveState `json:"state"`
	Detail string     `json:"detail"`
}

// conventionalDevices is the best-effort fallback when probing finds
// nothing accessible. Enumeration never returns an empty list.
var conventionalDevices = []string{"/dev/nst0", "/dev/st0"}

// Manager drives a tape device through the external mt tool and raw
// block I/O. It owns the per-device lock registry.
type Manager struct {
	tools *Toolset
	locks *LockRegistry
	log   log.LoggerService
}

func NewManager(tools *Toolset, logger log.LoggerService) *Manager {
	return &Manager{
		tools: tools,
		locks: NewLockRegistry(),
		log:   logger.Named("tape"),
	}
}

// Locks exposes the per-device exclusion registry for job runners.
func (m *Manager) Locks() *LockRegistry {
	return m.locks
}

// Tools exposes the resolved external tool paths.
func (m *Manager) Tools() *Toolset {
	return m.tools
}

// DetectDevices probes the conventional sequential-access device nodes
// and returns those that are accessible. When nothing responds it
// returns the conventional fallback list instead of an empty result.
func (m *Manager) DetectDevices() []string {
	var devices []string

	for i := 0; i < 8; i++ {
		for _, pattern := range []string{"/dev/nst%d", "/dev/st%d"} {
			device := fmt.Sprintf(pattern, i)
			if m.testDeviceAccess(device) {
				devices = append(devices, device)
			}
		}
	}

	if len(devices) == 0 {
		m.log.Debug("No tape devices detected, falling back to conventional paths")
		return append([]string{}, conventionalDevices...)
	}

	m.log.Info("Found %d tape devices: %v", len(devices), devices)
	return devices
}

func (m *Manager) testDeviceAccess(device string) bool {
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Status probes the drive with `mt status`, falling back to a plain
// accessibility check when mt is unavailable.
func (m *Manager) Status(ctx context.Context, device string) DriveStatus {
	status := DriveStatus{Device: device}

	if m.tools.HasMT() {
		ctx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()

		out, err := exec.CommandContext(ctx, m.tools.MT, "-f", device, "status").CombinedOutput()
		detail := strings.TrimSpace(string(out))
		if err == nil {
			status.State = DriveReady
			status.Detail = detail
			return status
		}
		if ctx.Err() != nil {
			status.State = DriveError
			status.Detail = "status command timed out"
			return status
		}
		status.State = DriveError
		if detail == "" {
			detail = err.Error()
		}
		status.Detail = detail
		return status
	}

	if m.testDeviceAccess(device) {
		status.State = DriveReady
		status.Detail = "device is accessible"
	} else {
		status.State = DriveNotAccessible
		status.Detail = "device not accessible"
	}
	return status
}

// Rewind moves the tape back to beginning-of-tape.
func (m *Manager) Rewind(ctx context.Context, device string) error {
	if !m.tools.HasMT() {
		return faults.Tape("tape.rewind", "mt tool not available")
	}

	ctx, cancel := context.WithTimeout(ctx, rewindTimeout)
	defer cancel()

	m.log.Info("Rewinding tape %s...", device)
	if out, err := exec.CommandContext(ctx, m.tools.MT, "-f", device, "rewind").CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return faults.Tape("tape.rewind", "rewind of %s timed out", device)
		}
		return faults.Tape("tape.rewind", "failed to rewind %s: %s", device, strings.TrimSpace(string(out)))
	}
	return nil
}

// SeekToArchive positions the tape at the start of the archive with the
// given 1-based position: rewind, then skip position-1 file marks.
func (m *Manager) SeekToArchive(ctx context.Context, device string, position int) error {
	if position < 1 {
		return faults.Validation("tape.seek", "archive position must be >= 1, got %d", position)
	}

	if err := m.Rewind(ctx, device); err != nil {
		return err
	}

	if position == 1 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, seekTimeout)
	defer cancel()

	m.log.Info("Seeking %s forward %d file marks", device, position-1)
	args := []string{"-f", device, "fsf", strconv.Itoa(position - 1)}
	if out, err := exec.CommandContext(ctx, m.tools.MT, args...).CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return faults.Tape("tape.seek", "seek on %s timed out", device)
		}
		return faults.Tape("tape.seek", "failed to seek %s to position %d: %s",
			device, position, strings.TrimSpace(string(out)))
	}
	return nil
}

// Eject unloads the media from the drive.
func (m *Manager) Eject(ctx context.Context, device string) error {
	if !m.tools.HasMT() {
		return faults.Tape("tape.eject", "mt tool not available")
	}

	ctx, cancel := context.WithTimeout(ctx, ejectTimeout)
	defer cancel()

	m.log.Info("Ejecting tape from %s...", device)
	if out, err := exec.CommandContext(ctx, m.tools.MT, "-f", device, "eject").CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return faults.Tape("tape.eject", "eject of %s timed out", device)
		}
		return faults.Tape("tape.eject", "failed to eject %s: %s", device, strings.TrimSpace(string(out)))
	}
	return nil
}
