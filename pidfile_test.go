package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireProjectLock_WritesCurrentPID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "locks", "manuals.lock")

	release, err := acquireProjectLock(path)
	require.NoError(t, err)
	require.NotNil(t, release)

	defer release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireProjectLock_SecondAcquisitionFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manuals.lock")

	release, err := acquireProjectLock(path)
	require.NoError(t, err)

	defer release()

	// flock is per open file description, so this fails even in-process.
	release2, err := acquireProjectLock(path)
	require.ErrorIs(t, err, errProjectBusy)
	assert.Nil(t, release2)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))
}

func TestAcquireProjectLock_ReleaseRemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manuals.lock")

	release, err := acquireProjectLock(path)
	require.NoError(t, err)

	release()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// And the project can be locked again.
	release, err = acquireProjectLock(path)
	require.NoError(t, err)
	release()
}

func TestAcquireProjectLock_EmptyPath(t *testing.T) {
	t.Parallel()

	release, err := acquireProjectLock("")
	require.Error(t, err)
	assert.Nil(t, release)
	assert.Contains(t, err.Error(), "empty")
}

func TestReadPIDFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.lock")
	require.NoError(t, os.WriteFile(valid, []byte("12345\n"), 0o644))

	pid, err := readPIDFile(valid)
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	invalid := filepath.Join(dir, "invalid.lock")
	require.NoError(t, os.WriteFile(invalid, []byte("not-a-pid\n"), 0o644))

	_, err = readPIDFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID")

	_, err = readPIDFile(filepath.Join(dir, "missing.lock"))
	assert.Error(t, err)
}

func TestLockHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	assert.Zero(t, lockHolder(filepath.Join(dir, "idle.lock")))

	live := filepath.Join(dir, "live.lock")
	release, err := acquireProjectLock(live)
	require.NoError(t, err)

	defer release()

	assert.Equal(t, os.Getpid(), lockHolder(live))

	stale := filepath.Join(dir, "stale.lock")
	// PID 999999999 is almost certainly not a running process.
	require.NoError(t, os.WriteFile(stale, []byte("999999999\n"), 0o644))

	assert.Zero(t, lockHolder(stale))

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale lock file removed")
}
