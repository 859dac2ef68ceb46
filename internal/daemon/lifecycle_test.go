package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleManager(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	l := NewLifecycleManager(dataDir, "s-1", zerolog.Nop())

	require.NoError(t, l.Start())
	pid, err := ReadPID(l.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// A restart from the same process is allowed
	require.NoError(t, l.Start())

	require.NoError(t, l.Stop())
	_, err = os.Stat(l.PIDFile())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, l.Stop())
}

func TestLifecycleManager_RefusesLiveOwner(t *testing.T) {
	dataDir := t.TempDir()
	pidFile := PIDFilePath(dataDir, "s-1")
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getppid())), 0644))

	err := NewLifecycleManager(dataDir, "s-1", zerolog.Nop()).Start()
	assert.Error(t, err)
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPID(filepath.Join(dir, "missing.pid"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("abc"), 0644))
	_, err = ReadPID(bad)
	assert.Error(t, err)

	good := filepath.Join(dir, "good.pid")
	require.NoError(t, os.WriteFile(good, []byte("42\n"), 0644))
	pid, err := ReadPID(good)
	require.NoError(t, err)
	assert.Equal(t, 42, pid)
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
	assert.False(t, ProcessAlive(-1))
}

func TestListProcesses(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(PIDFilePath(dataDir, "beta"), []byte(strconv.Itoa(os.Getpid())), 0644))
	require.NoError(t, os.WriteFile(PIDFilePath(dataDir, "alpha"), []byte("garbage"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "other.pid"), []byte("1"), 0644))

	infos, err := ListProcesses(dataDir)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "alpha", infos[0].SessionID)
	assert.False(t, infos[0].Running)
	assert.Zero(t, infos[0].PID)

	assert.Equal(t, "beta", infos[1].SessionID)
	assert.True(t, infos[1].Running)
	assert.Equal(t, os.Getpid(), infos[1].PID)
	assert.False(t, infos[1].StartTime.IsZero())
}
