package tape

import (
	"testing"

	"github.com/mwantia/gotape/pkg/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistryExclusivity(t *testing.T) {
	locks := NewLockRegistry()

	release, err := locks.Acquire("/dev/nst0", "archive:photos_2026.tar")
	require.NoError(t, err)

	_, err = locks.Acquire("/dev/nst0", "recover:photos_2026.tar")
	require.Error(t, err)
	assert.True(t, faults.IsTape(err))
	assert.Contains(t, err.Error(), "archive:photos_2026.tar", "the error names the current holder")

	holder, held := locks.Holder("/dev/nst0")
	assert.True(t, held)
	assert.Equal(t, "archive:photos_2026.tar", holder)

	// A different device is independent.
	other, err := locks.Acquire("/dev/nst1", "archive:docs.tar")
	require.NoError(t, err)
	other()

	release()
	_, held = locks.Holder("/dev/nst0")
	assert.False(t, held)

	release2, err := locks.Acquire("/dev/nst0", "retry-recovery:photos_2026.tar")
	require.NoError(t, err)
	release2()
}

func TestLockReleaseIsIdempotent(t *testing.T) {
	locks := NewLockRegistry()

	release, err := locks.Acquire("/dev/nst0", "first")
	require.NoError(t, err)
	release()
	release()

	// A double release must not free a lock taken by someone else.
	_, err = locks.Acquire("/dev/nst0", "second")
	require.NoError(t, err)
	release()

	holder, held := locks.Holder("/dev/nst0")
	assert.True(t, held)
	assert.Equal(t, "second", holder)
}
