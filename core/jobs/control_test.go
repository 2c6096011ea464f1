package jobs

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSleep(t *testing.T) int {
	t.Helper()
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	proc, err := os.StartProcess(path, []string{"sleep", "10"}, &os.ProcAttr{
		Sys: &syscall.SysProcAttr{Setpgid: true},
	})
	require.NoError(t, err)
	pid := proc.Pid
	require.NoError(t, proc.Release())
	return pid
}

func TestOSControlStopContinueKill(t *testing.T) {
	pid := startSleep(t)
	ctrl := OSControl{}
	table := NewTable(ctrl)
	j := table.Add(pid, []*Member{NewProcess(pid)}, "sleep 10", false)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = ctrl.Signal(pid, syscall.SIGTSTP)
	}()
	status, err := table.WaitForeground(j)
	require.NoError(t, err)
	assert.Equal(t, Stopped, j.State())
	assert.Equal(t, 128+int(syscall.SIGTSTP), status)

	require.NoError(t, table.Background(j))
	assert.Equal(t, Running, j.State())

	require.NoError(t, ctrl.Signal(pid, syscall.SIGKILL))
	status, err = table.Foreground(j)
	require.NoError(t, err)
	assert.Equal(t, Done, j.State())
	assert.Equal(t, 128+int(syscall.SIGKILL), status)
}

func TestOSControlNonBlockingWait(t *testing.T) {
	pid := startSleep(t)
	ctrl := OSControl{}

	_, ok, err := ctrl.Wait(pid, false)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ctrl.Signal(pid, syscall.SIGKILL))
	res, ok, err := ctrl.Wait(pid, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, res.Exited)
	assert.Equal(t, 137, res.Status)
}
