// SPDX-License-Identifier: MIT

// Package procgroup starts subprocesses in their own process group and
// tears the whole group down on shutdown. The encoder and the model
// runtime are spawned through it so their helpers die with them.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

// ErrKillFailed reports a process group that survived SIGKILL within
// the allowed timeout.
var ErrKillFailed = errors.New("kill operation failed")

// Set configures the command to start in a new process group.
// Mandatory for KillGroup and Terminate to reach child processes.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// KillGroup terminates an entire process group: SIGTERM, a grace
// period, then SIGKILL. The process must have been spawned with Set.
// Liveness is polled, so a child process needs a pending Wait
// somewhere to be reaped.
func KillGroup(pid int, grace, timeout time.Duration) error {
	return killGroup(pid, grace, timeout)
}
