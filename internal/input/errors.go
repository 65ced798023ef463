// SPDX-License-Identifier: MIT

package input

import "errors"

var (
	// ErrSourceUnavailable means no platform event tap exists here.
	ErrSourceUnavailable = errors.New("input event source unavailable")

	// ErrNoSession means a save was requested but no tracking interval
	// has been opened since the last save.
	ErrNoSession = errors.New("no tracking session to save")
)
