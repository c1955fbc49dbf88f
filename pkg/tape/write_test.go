package tape

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	config "github.com/mwantia/gotape/internal/config/server"
	"github.com/mwantia/gotape/pkg/faults"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := log.NewLoggerService("test", config.LogServerConfig{Level: "error"})
	return NewManager(&Toolset{Tar: "tar", DD: "dd"}, logger)
}

func TestWriteFileCopiesInBlocks(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	payload := bytes.Repeat([]byte("sequential access "), 1000)
	source := filepath.Join(dir, "staged.tar")
	require.NoError(t, os.WriteFile(source, payload, 0o644))

	device := filepath.Join(dir, "device")
	require.NoError(t, os.WriteFile(device, nil, 0o644))

	var calls int
	var lastWritten, lastTotal int64
	written, err := manager.WriteFile(context.Background(), device, source, 4096, func(w, total int64) {
		calls++
		lastWritten, lastTotal = w, total
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), written)
	assert.Equal(t, int64(len(payload)), lastWritten)
	assert.Equal(t, int64(len(payload)), lastTotal)
	assert.Equal(t, (len(payload)+4095)/4096, calls, "one progress call per block")

	got, err := os.ReadFile(device)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteFileDefaultBlockSize(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	source := filepath.Join(dir, "staged.tar")
	require.NoError(t, os.WriteFile(source, []byte("small"), 0o644))
	device := filepath.Join(dir, "device")
	require.NoError(t, os.WriteFile(device, nil, 0o644))

	written, err := manager.WriteFile(context.Background(), device, source, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), written)
}

func TestWriteFileMissingSource(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	_, err := manager.WriteFile(context.Background(), filepath.Join(dir, "device"), filepath.Join(dir, "gone.tar"), 0, nil)
	require.Error(t, err)
	assert.True(t, faults.IsTape(err))
}

func TestWriteFileMissingDevice(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	source := filepath.Join(dir, "staged.tar")
	require.NoError(t, os.WriteFile(source, []byte("data"), 0o644))

	_, err := manager.WriteFile(context.Background(), filepath.Join(dir, "missing", "device"), source, 0, nil)
	require.Error(t, err)
	assert.True(t, faults.IsTape(err))
}

func TestWriteFileHonorsCancellation(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	source := filepath.Join(dir, "staged.tar")
	require.NoError(t, os.WriteFile(source, []byte("data"), 0o644))
	device := filepath.Join(dir, "device")
	require.NoError(t, os.WriteFile(device, nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written, err := manager.WriteFile(ctx, device, source, 0, nil)
	require.Error(t, err)
	assert.Zero(t, written)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestDetectDevicesNeverEmpty(t *testing.T) {
	manager := newTestManager(t)

	devices := manager.DetectDevices()
	require.NotEmpty(t, devices, "fallback paths are returned when no drive responds")
	for _, device := range devices {
		assert.True(t, strings.HasPrefix(device, "/dev/"), "device %s looks wrong", device)
	}
}
