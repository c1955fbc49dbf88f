package tape

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwantia/gotape/pkg/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFallbackWithoutMT(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	device := filepath.Join(dir, "device")
	require.NoError(t, os.WriteFile(device, nil, 0o644))

	status := manager.Status(context.Background(), device)
	assert.Equal(t, DriveReady, status.State)
	assert.Equal(t, device, status.Device)

	status = manager.Status(context.Background(), filepath.Join(dir, "missing"))
	assert.Equal(t, DriveNotAccessible, status.State)
}

func TestPositioningDegradesWithoutMT(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	err := manager.Rewind(ctx, "/dev/nst0")
	require.Error(t, err)
	assert.True(t, faults.IsTape(err))

	err = manager.Eject(ctx, "/dev/nst0")
	require.Error(t, err)
	assert.True(t, faults.IsTape(err))

	// Seek rewinds first, so it fails the same way.
	err = manager.SeekToArchive(ctx, "/dev/nst0", 2)
	require.Error(t, err)
	assert.True(t, faults.IsTape(err))
}

func TestSeekRejectsInvalidPosition(t *testing.T) {
	manager := newTestManager(t)

	err := manager.SeekToArchive(context.Background(), "/dev/nst0", 0)
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestHasMT(t *testing.T) {
	assert.False(t, (&Toolset{Tar: "tar", DD: "dd"}).HasMT())
	assert.True(t, (&Toolset{Tar: "tar", DD: "dd", MT: "/usr/bin/mt"}).HasMT())
}
