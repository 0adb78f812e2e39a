package client

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_Lock(t *testing.T) {
	root := t.TempDir()
	first := NewWorkspace(root)
	second := NewWorkspace(root)

	require.NoError(t, first.Lock())
	data, err := os.ReadFile(filepath.Join(root, lockFile))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	err = second.Lock()
	assert.ErrorIs(t, err, ErrWorkspaceLocked)
	assert.ErrorContains(t, err, "pid "+strconv.Itoa(os.Getpid()))

	// a process that never held the lock leaves it alone
	require.NoError(t, second.Unlock())
	assert.FileExists(t, filepath.Join(root, lockFile))

	require.NoError(t, first.Unlock())
	assert.NoFileExists(t, filepath.Join(root, lockFile))

	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
}
