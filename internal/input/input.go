// SPDX-License-Identifier: MIT

// Package input tracks keyboard and mouse activity in sessions.
//
// A Tracker buffers events from a platform Source while tracking is
// active and persists them as one atomic batch. Mouse moves are
// down-sampled to at most one stored event per 50ms. The X11 source
// (Linux, cgo) listens for XInput2 raw events on the root window;
// elsewhere a stub source reports unavailable, and sessions built from
// client-supplied events keep working without any live source.
package input

import (
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/types"
)

// Emit delivers one raw event to the tracker. Sources call it from their
// own goroutine, never before Start has returned.
type Emit func(kind types.InputEventKind, payload string)

// Source is a platform event tap. Start begins delivery and reports
// ErrSourceUnavailable when the platform has no usable tap. Stop halts
// delivery and tolerates being called without a prior Start.
type Source interface {
	Start(emit Emit) error
	Stop()
}

// NewSource returns the event tap for this platform. Construction always
// succeeds; availability surfaces on Start.
func NewSource(logger zerolog.Logger) Source {
	return newPlatformSource(logger)
}

// Status is the tracker state reported to clients.
type Status struct {
	IsTracking bool `json:"is_tracking"`
	EventCount int  `json:"event_count"`
}
