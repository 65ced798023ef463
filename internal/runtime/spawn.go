// SPDX-License-Identifier: MIT

package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/procgroup"
)

// Process is a runtime subprocess started by Spawn.
type Process struct {
	cmd     string
	process *exec.Cmd
	waitCh  chan error
	logger  zerolog.Logger
}

// Spawn starts the runtime with the configured command line in its own
// process group. The command is split on whitespace; no shell is
// involved. The process outlives ctx; call Stop to end it.
func Spawn(ctx context.Context, command string, logger zerolog.Logger) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty spawn command")
	}

	cmd := exec.Command(fields[0], fields[1:]...) // #nosec G204 -- operator-configured command
	procgroup.Set(cmd)
	cmd.Stdout = io.Discard

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn runtime: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn runtime: %w", err)
	}

	p := &Process{
		cmd:     command,
		process: cmd,
		waitCh:  make(chan error, 1),
		logger:  logger,
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				logger.Debug().Msg(line)
			}
		}
	}()

	go func() {
		err := cmd.Wait()
		if err != nil {
			logger.Warn().Err(err).Msg("runtime process exited")
		} else {
			logger.Info().Msg("runtime process exited")
		}
		p.waitCh <- err
	}()

	logger.Info().Int("pid", cmd.Process.Pid).Str("command", command).Msg("runtime spawned")
	return p, nil
}

// Pid returns the runtime's process id, or 0 when not running.
func (p *Process) Pid() int {
	if p == nil || p.process == nil || p.process.Process == nil {
		return 0
	}
	return p.process.Process.Pid
}

// Stop terminates the runtime process group: SIGTERM, then SIGKILL
// after grace. Safe to call on a nil Process.
func (p *Process) Stop(grace time.Duration) error {
	if p == nil {
		return nil
	}
	err := procgroup.Terminate(p.process, p.waitCh, grace)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Killed by our own signal, which is the expected path.
			return nil
		}
	}
	return err
}
