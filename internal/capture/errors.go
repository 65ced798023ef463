// SPDX-License-Identifier: MIT

package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable indicates no screen capture backend can run on
	// this host (no display server, or an unsupported platform).
	ErrBackendUnavailable = errors.New("no screen capture backend available")

	// ErrTargetNotFound indicates the requested display or window does not
	// exist at open time.
	ErrTargetNotFound = errors.New("capture target not found")

	// ErrInvalidTarget indicates a malformed target, such as a region with
	// non-positive dimensions.
	ErrInvalidTarget = errors.New("invalid capture target")

	// ErrTimeout indicates no frame became available before the caller's
	// deadline.
	ErrTimeout = errors.New("no frame available before deadline")

	// ErrStreamClosed is the base error of every ClosedError.
	ErrStreamClosed = errors.New("frame stream closed")
)

// Close reasons carried by ClosedError.
const (
	ReasonClosed     = "closed"
	ReasonTargetGone = "target_gone"
)

// ClosedError reports that a frame stream has ended and why.
type ClosedError struct {
	Reason string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("frame stream closed: %s", e.Reason)
}

func (e *ClosedError) Unwrap() error { return ErrStreamClosed }
