// SPDX-License-Identifier: MIT

// Package capture grabs screen pixels behind a platform-neutral interface.
//
// A Backend enumerates displays and windows and opens a FrameStream for a
// Target. Streams pace frame production at a fixed interval, buffer a few
// frames, and drop the oldest undelivered frame when the consumer falls
// behind. Frames are RGBA, 8 bits per channel, row-major, no padding.
//
// The X11 backend (Linux, cgo) captures through MIT-SHM with the cursor
// composited via XFixes. The synthetic backend renders a deterministic
// pattern and is used by tests and headless runs.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Rect is a pixel rectangle. For region targets the origin is relative to
// the chosen display.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Display describes one attached monitor. DisplayID is the OS-native stable
// identifier where the platform has one (the RandR output name on X11).
type Display struct {
	Index     int    `json:"index"`
	DisplayID string `json:"display_id"`
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsPrimary bool   `json:"is_primary"`
}

// Window describes one visible top-level window. Bounds are in root
// coordinates.
type Window struct {
	Title   string `json:"title"`
	AppName string `json:"app_name"`
	Bounds  Rect   `json:"bounds"`
}

// Frame is one captured image. Pixels holds Width*Height*4 RGBA bytes.
// CapturedAt carries a monotonic clock reading, so frame order within a
// stream follows capture order even across wall-clock adjustments.
type Frame struct {
	Pixels     []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

type targetKind int

const (
	targetFull targetKind = iota
	targetDisplay
	targetRegion
	targetWindow
)

// Target selects what a stream captures. Construct with FullScreen,
// DisplayByID, RegionOn or WindowByTitle.
type Target struct {
	kind      targetKind
	displayID string
	region    Rect
	title     string
}

// FullScreen targets the primary display in full.
func FullScreen() Target {
	return Target{kind: targetFull}
}

// DisplayByID targets one display in full.
func DisplayByID(id string) Target {
	return Target{kind: targetDisplay, displayID: id}
}

// RegionOn targets a rectangle on one display. An empty displayID means the
// primary display.
func RegionOn(displayID string, r Rect) Target {
	return Target{kind: targetRegion, displayID: displayID, region: r}
}

// WindowByTitle targets the bounds of the named window. The bounds are
// resolved once at open time; the stream does not follow window moves.
func WindowByTitle(title string) Target {
	return Target{kind: targetWindow, title: title}
}

// String renders the target for logs.
func (t Target) String() string {
	switch t.kind {
	case targetDisplay:
		return fmt.Sprintf("display %s", t.displayID)
	case targetRegion:
		return fmt.Sprintf("region %dx%d+%d+%d on %s",
			t.region.Width, t.region.Height, t.region.X, t.region.Y, t.displayID)
	case targetWindow:
		return fmt.Sprintf("window %q", t.title)
	default:
		return "full screen"
	}
}

// modeLabel maps a target onto the low-cardinality capture metrics label.
func (t Target) modeLabel() string {
	switch t.kind {
	case targetRegion, targetWindow:
		return "region"
	default:
		return "fullscreen"
	}
}

// FrameStream delivers paced frames for one open target.
type FrameStream interface {
	// Next returns the next frame. It returns ErrTimeout when ctx carries a
	// deadline that passes first, the ctx error on cancellation, and a
	// ClosedError once the stream has ended.
	Next(ctx context.Context) (*Frame, error)

	// Size reports the fixed frame dimensions of this stream.
	Size() (width, height int)

	// Close stops frame production and releases all platform resources.
	// Safe to call more than once.
	Close() error
}

// Backend enumerates capture targets and opens frame streams.
type Backend interface {
	ListDisplays() ([]Display, error)
	ListWindows() ([]Window, error)

	// Open starts capturing the target, producing at most one frame per
	// interval.
	Open(target Target, interval time.Duration) (FrameStream, error)
}

// New returns the backend selected by the capture_backend config knob:
// "auto" picks the platform backend, "synthetic" the deterministic one.
func New(kind string, logger zerolog.Logger) (Backend, error) {
	switch kind {
	case "", "auto":
		return newPlatformBackend(logger)
	case "synthetic":
		b := NewSynthetic(1280, 800)
		b.logger = logger
		return b, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", kind)
	}
}
