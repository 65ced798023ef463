// SPDX-License-Identifier: MIT

package encoder

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means no ffmpeg binary could be resolved.
	ErrUnavailable = errors.New("encoder unavailable: ffmpeg not found")

	// ErrNoFrames means the frame stream closed before delivering a
	// single frame.
	ErrNoFrames = errors.New("no frames delivered")
)

// FailedError reports an ffmpeg run that exited non-zero or overran its
// deadline. Stderr holds the tail of the process output.
type FailedError struct {
	Stage    string // encode or mux
	Code     int
	TimedOut bool
	Stderr   []string
}

func (e *FailedError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("ffmpeg %s timed out", e.Stage)
	}
	msg := fmt.Sprintf("ffmpeg %s failed with exit code %d", e.Stage, e.Code)
	if n := len(e.Stderr); n > 0 {
		msg += ": " + e.Stderr[n-1]
	}
	return msg
}
