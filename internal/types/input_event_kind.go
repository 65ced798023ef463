// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// InputEventKind classifies one captured keyboard or mouse event.
type InputEventKind string

// Input event kind constants.
const (
	EventKeyPress         InputEventKind = "key_press"
	EventKeyRelease       InputEventKind = "key_release"
	EventMouseDown        InputEventKind = "mouse_down"
	EventMouseUp          InputEventKind = "mouse_up"
	EventMouseMoveSampled InputEventKind = "mouse_move_sampled"
	EventScroll           InputEventKind = "scroll"
)

// String implements fmt.Stringer.
func (k InputEventKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is one of the defined constants.
func (k InputEventKind) IsValid() bool {
	switch k {
	case EventKeyPress, EventKeyRelease, EventMouseDown, EventMouseUp,
		EventMouseMoveSampled, EventScroll:
		return true
	default:
		return false
	}
}

// IsKeystroke reports whether the event counts toward keystroke totals.
func (k InputEventKind) IsKeystroke() bool {
	return k == EventKeyPress
}

// IsClick reports whether the event counts toward click totals.
func (k InputEventKind) IsClick() bool {
	return k == EventMouseDown
}

// MarshalJSON implements json.Marshaler.
func (k InputEventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *InputEventKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	kind := InputEventKind(str)
	if !kind.IsValid() {
		return fmt.Errorf("invalid input event kind: %q", str)
	}

	*k = kind
	return nil
}
