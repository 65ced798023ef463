// SPDX-License-Identifier: MIT

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) *exec.Cmd {
	t.Helper()

	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, cmd.Process.Pid, pgid, "process should be group leader")

	return cmd
}

func groupGone(pid int) bool {
	return syscall.Kill(-pid, syscall.Signal(0)) == syscall.ESRCH
}

func TestKillGroupTerminatesChildren(t *testing.T) {
	cmd := startGroup(t, "sleep 100 & sleep 100")
	go func() { _ = cmd.Wait() }()

	pid := cmd.Process.Pid
	require.NoError(t, KillGroup(pid, 200*time.Millisecond, 2*time.Second))

	assert.Eventually(t, func() bool { return groupGone(pid) },
		2*time.Second, 20*time.Millisecond, "process group should be dead")
}

func TestKillGroupEscalatesToSigkill(t *testing.T) {
	// The shell ignores SIGTERM and the sleep inherits that
	// disposition, so only SIGKILL can end the group.
	cmd := startGroup(t, `trap "" TERM; sleep 100`)
	go func() { _ = cmd.Wait() }()

	pid := cmd.Process.Pid
	require.NoError(t, KillGroup(pid, 100*time.Millisecond, 3*time.Second))

	assert.Eventually(t, func() bool { return groupGone(pid) },
		2*time.Second, 20*time.Millisecond, "process group should be dead")
}

func TestKillGroupAlreadyGone(t *testing.T) {
	err := KillGroup(99999, 10*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err, "should not fail if process is already gone")
}

func TestTerminateGraceful(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	err := Terminate(cmd, waitCh, 5*time.Second)
	require.Error(t, err, "expected exit error from signal kill")

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, status.Signaled())
	assert.Equal(t, syscall.SIGTERM, status.Signal())

	assert.Less(t, time.Since(start), 5*time.Second, "SIGTERM should have ended the process before the grace period")
}

func TestTerminateNilCmd(t *testing.T) {
	require.NoError(t, Terminate(nil, nil, time.Second))
}
