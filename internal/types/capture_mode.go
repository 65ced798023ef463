// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// CaptureMode identifies what part of the desktop a recording covers.
type CaptureMode string

// Capture mode constants.
const (
	// ModeFullscreen captures the primary display in full.
	ModeFullscreen CaptureMode = "fullscreen"

	// ModeFullscreenSingle captures one specific display in full.
	ModeFullscreenSingle CaptureMode = "fullscreen-single"

	// ModeRegion captures a rectangle on one display. Window capture is
	// expressed as a region over the window bounds at start time.
	ModeRegion CaptureMode = "region"
)

// String implements fmt.Stringer.
func (m CaptureMode) String() string {
	return string(m)
}

// IsValid checks whether the capture mode is one of the defined constants.
func (m CaptureMode) IsValid() bool {
	switch m {
	case ModeFullscreen, ModeFullscreenSingle, ModeRegion:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (m CaptureMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(m))
}

// UnmarshalJSON implements json.Unmarshaler. "window" is accepted as an
// alias for region capture over the target window bounds.
func (m *CaptureMode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	mode, err := ParseCaptureMode(str)
	if err != nil {
		return err
	}

	*m = mode
	return nil
}

// ParseCaptureMode parses a string into a CaptureMode. "window" is accepted
// as an alias for region; an empty string parses as fullscreen.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch s {
	case "":
		return ModeFullscreen, nil
	case "window":
		return ModeRegion, nil
	}
	mode := CaptureMode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid capture mode: %q", s)
	}
	return mode, nil
}
