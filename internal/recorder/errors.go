// SPDX-License-Identifier: MIT

package recorder

import "errors"

var (
	// ErrBusy indicates a recording is already in progress; at most one
	// runs per process.
	ErrBusy = errors.New("a recording is already in progress")

	// ErrNotRecording indicates there is nothing to stop.
	ErrNotRecording = errors.New("no recording in progress")

	// ErrInvalidRequest is the base error for malformed start requests.
	ErrInvalidRequest = errors.New("invalid recording request")

	// ErrClosed indicates the orchestrator has been shut down.
	ErrClosed = errors.New("recorder is shut down")
)
