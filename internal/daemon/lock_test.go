package daemon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "daemon.pid.lock")

	first := NewInstanceLock(path)
	require.NoError(t, first.TryLock())
	assert.True(t, first.Locked())
	assert.Equal(t, path, first.Path())

	// Given a held lock, when another instance tries, then it is refused
	second := NewInstanceLock(path)
	assert.ErrorIs(t, second.TryLock(), ErrAlreadyRunning)
	assert.False(t, second.Locked())

	// When the first releases, then the second can acquire
	require.NoError(t, first.Unlock())
	assert.False(t, first.Locked())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestInstanceLock_UnlockWithoutLock(t *testing.T) {
	l := NewInstanceLock(filepath.Join(t.TempDir(), "x.lock"))

	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
}
