// SPDX-License-Identifier: MIT

package capture

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Synthetic is a deterministic in-memory backend. It renders a moving
// gradient instead of touching any display server, which makes it usable in
// tests and on headless hosts.
type Synthetic struct {
	logger zerolog.Logger

	mu       sync.Mutex
	displays []Display
	windows  []Window
	gone     map[string]bool
}

var _ Backend = (*Synthetic)(nil)

// NewSynthetic returns a synthetic backend with one primary display of the
// given size and two fixed windows on it.
func NewSynthetic(width, height int) *Synthetic {
	return &Synthetic{
		logger: zerolog.Nop(),
		displays: []Display{{
			Index:     0,
			DisplayID: "synthetic-0",
			Name:      "Synthetic Display",
			Width:     width,
			Height:    height,
			IsPrimary: true,
		}},
		windows: []Window{
			{Title: "Synthetic Terminal", AppName: "term", Bounds: Rect{X: 40, Y: 40, Width: width / 2, Height: height / 2}},
			{Title: "Synthetic Editor", AppName: "edit", Bounds: Rect{X: 120, Y: 90, Width: width / 3, Height: height / 3}},
		},
		gone: make(map[string]bool),
	}
}

func (b *Synthetic) ListDisplays() ([]Display, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Display, len(b.displays))
	copy(out, b.displays)
	return out, nil
}

func (b *Synthetic) ListWindows() ([]Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Window, len(b.windows))
	copy(out, b.windows)
	return out, nil
}

// RemoveWindow makes the named window vanish, so open streams targeting it
// end with reason target_gone on their next grab.
func (b *Synthetic) RemoveWindow(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gone[title] = true
	kept := b.windows[:0]
	for _, w := range b.windows {
		if w.Title != title {
			kept = append(kept, w)
		}
	}
	b.windows = kept
}

func (b *Synthetic) Open(target Target, interval time.Duration) (FrameStream, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidTarget)
	}
	region, watchTitle, err := b.resolve(target)
	if err != nil {
		return nil, err
	}

	g := &syntheticGrabber{backend: b, region: region, watchTitle: watchTitle}
	b.logger.Debug().
		Stringer("target", target).
		Int("width", region.Width).
		Int("height", region.Height).
		Msg("synthetic stream opened")
	return newStream(g, region.Width, region.Height, interval, target.modeLabel(), b.logger), nil
}

// resolve maps a target onto a concrete pixel region. For window targets it
// also returns the title to watch for disappearance.
func (b *Synthetic) resolve(target Target) (Rect, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch target.kind {
	case targetFull:
		d := b.displays[0]
		return Rect{Width: d.Width, Height: d.Height}, "", nil

	case targetDisplay:
		for _, d := range b.displays {
			if d.DisplayID == target.displayID {
				return Rect{Width: d.Width, Height: d.Height}, "", nil
			}
		}
		return Rect{}, "", fmt.Errorf("%w: display %q", ErrTargetNotFound, target.displayID)

	case targetRegion:
		var disp *Display
		for i := range b.displays {
			if target.displayID == "" && b.displays[i].IsPrimary {
				disp = &b.displays[i]
				break
			}
			if b.displays[i].DisplayID == target.displayID {
				disp = &b.displays[i]
				break
			}
		}
		if disp == nil {
			return Rect{}, "", fmt.Errorf("%w: display %q", ErrTargetNotFound, target.displayID)
		}
		region, err := clampRegion(target.region, disp.Width, disp.Height)
		return region, "", err

	case targetWindow:
		win, ok := b.findWindow(target.title)
		if !ok {
			return Rect{}, "", fmt.Errorf("%w: window %q", ErrTargetNotFound, target.title)
		}
		d := b.displays[0]
		region, err := clampRegion(win.Bounds, d.Width, d.Height)
		return region, win.Title, err

	default:
		return Rect{}, "", ErrInvalidTarget
	}
}

// findWindow matches exact titles first, then a case-insensitive substring.
// Callers hold b.mu.
func (b *Synthetic) findWindow(title string) (Window, bool) {
	for _, w := range b.windows {
		if w.Title == title {
			return w, true
		}
	}
	needle := strings.ToLower(title)
	for _, w := range b.windows {
		if strings.Contains(strings.ToLower(w.Title), needle) {
			return w, true
		}
	}
	return Window{}, false
}

// clampRegion validates a region and clips it to the display bounds.
func clampRegion(r Rect, maxW, maxH int) (Rect, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return Rect{}, fmt.Errorf("%w: region %dx%d", ErrInvalidTarget, r.Width, r.Height)
	}
	if r.X < 0 {
		r.Width += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.Height += r.Y
		r.Y = 0
	}
	if r.X+r.Width > maxW {
		r.Width = maxW - r.X
	}
	if r.Y+r.Height > maxH {
		r.Height = maxH - r.Y
	}
	if r.Width <= 0 || r.Height <= 0 {
		return Rect{}, fmt.Errorf("%w: region outside display bounds", ErrInvalidTarget)
	}
	return r, nil
}

type syntheticGrabber struct {
	backend    *Synthetic
	region     Rect
	watchTitle string
	counter    int
}

func (g *syntheticGrabber) grab() (*Frame, error) {
	if g.watchTitle != "" {
		g.backend.mu.Lock()
		vanished := g.backend.gone[g.watchTitle]
		g.backend.mu.Unlock()
		if vanished {
			return nil, errTargetGone
		}
	}

	g.counter++
	w, h := g.region.Width, g.region.Height
	pixels := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		row := y * w * 4
		for x := 0; x < w; x++ {
			off := row + x*4
			pixels[off] = byte(x + g.counter)
			pixels[off+1] = byte(y)
			pixels[off+2] = byte(g.counter) // blue channel carries the frame counter
			pixels[off+3] = 0xFF
		}
	}
	return &Frame{Pixels: pixels, Width: w, Height: h}, nil
}

func (g *syntheticGrabber) close() error { return nil }
