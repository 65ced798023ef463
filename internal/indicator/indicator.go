// SPDX-License-Identifier: MIT

// Package indicator models the method-channel protocol the floating
// indicator speaks. Each message is a tagged variant: a method name plus
// typed arguments. Decoding is strict; an unknown method or unexpected
// argument is an error, never a silent no-op, so protocol drift between
// the desktop client and this daemon surfaces immediately.
//
// The daemon treats these messages as hints. Authoritative recording
// state lives behind the HTTP API, and the indicator observes it through
// the status stream.
package indicator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message is one decoded method-channel message.
type Message interface {
	// Method returns the wire-level method name of the variant.
	Method() string
}

// Envelope is the wire shape: a method name and optional arguments.
type Envelope struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Simple messages carry no arguments.
type (
	// ShowFloatingBall asks the client to show the indicator window.
	ShowFloatingBall struct{}
	// HideFloatingBall asks the client to hide the indicator window.
	HideFloatingBall struct{}
	// OpenQuickChat opens the quick-chat panel.
	OpenQuickChat struct{}
	// OpenVideos opens the recordings list.
	OpenVideos struct{}
	// OpenSettings opens the settings view.
	OpenSettings struct{}
	// PrepareWindowSelection puts the client into window-pick mode.
	PrepareWindowSelection struct{}
	// PrepareScreenRecording puts the client into whole-screen mode.
	PrepareScreenRecording struct{}
	// QuitApp asks the client to exit.
	QuitApp struct{}
)

func (ShowFloatingBall) Method() string       { return "showFloatingBall" }
func (HideFloatingBall) Method() string       { return "hideFloatingBall" }
func (OpenQuickChat) Method() string          { return "openQuickChat" }
func (OpenVideos) Method() string             { return "openVideos" }
func (OpenSettings) Method() string           { return "openSettings" }
func (PrepareWindowSelection) Method() string { return "prepareWindowSelection" }
func (PrepareScreenRecording) Method() string { return "prepareScreenRecording" }
func (QuitApp) Method() string                { return "quitApp" }

// SetRecordingState mirrors whether a recording is running.
type SetRecordingState struct {
	IsRecording bool `json:"isRecording"`
}

func (SetRecordingState) Method() string { return "setRecordingState" }

// SetPausedState mirrors whether the running recording is paused.
type SetPausedState struct {
	IsPaused bool `json:"isPaused"`
}

func (SetPausedState) Method() string { return "setPausedState" }

// SetTrackingState mirrors whether input tracking is running.
type SetTrackingState struct {
	IsTracking bool `json:"isTracking"`
}

func (SetTrackingState) Method() string { return "setTrackingState" }

// SwitchTab selects a tab in the client's main window.
type SwitchTab struct {
	Index int `json:"index"`
}

func (SwitchTab) Method() string { return "switchTab" }

// PrepareRegionSelection puts the client into region-pick mode. Both
// screen references are optional; the client falls back to the screen
// under the cursor.
type PrepareRegionSelection struct {
	ScreenIndex     *int   `json:"screenIndex,omitempty"`
	ScreenDisplayID string `json:"screen_display_id,omitempty"`
}

func (PrepareRegionSelection) Method() string { return "prepareRegionSelection" }

// Decode parses one method-channel message. The method name selects the
// variant; arguments are decoded strictly, so unknown methods and
// unknown argument fields both fail with ErrUnknownMessage wrapping the
// detail.
func Decode(data []byte) (Message, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	if env.Method == "" {
		return nil, fmt.Errorf("%w: missing method", ErrUnknownMessage)
	}

	msg, ok := variantFor(env.Method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Method)
	}

	if len(env.Args) > 0 && !bytes.Equal(env.Args, []byte("null")) {
		argDec := json.NewDecoder(bytes.NewReader(env.Args))
		argDec.DisallowUnknownFields()
		if err := argDec.Decode(msg); err != nil {
			return nil, fmt.Errorf("%w: %s args: %v", ErrUnknownMessage, env.Method, err)
		}
	}
	return deref(msg), nil
}

// Encode renders a message back to its wire shape. Argument-less
// variants omit the args field entirely.
func Encode(m Message) ([]byte, error) {
	env := Envelope{Method: m.Method()}
	switch m.(type) {
	case ShowFloatingBall, HideFloatingBall, OpenQuickChat, OpenVideos,
		OpenSettings, PrepareWindowSelection, PrepareScreenRecording, QuitApp:
	default:
		args, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		env.Args = args
	}
	return json.Marshal(env)
}

// variantFor returns a pointer to a zero value of the variant so Decode
// can unmarshal into it.
func variantFor(method string) (Message, bool) {
	switch method {
	case "showFloatingBall":
		return &ShowFloatingBall{}, true
	case "hideFloatingBall":
		return &HideFloatingBall{}, true
	case "setRecordingState":
		return &SetRecordingState{}, true
	case "setPausedState":
		return &SetPausedState{}, true
	case "setTrackingState":
		return &SetTrackingState{}, true
	case "openQuickChat":
		return &OpenQuickChat{}, true
	case "openVideos":
		return &OpenVideos{}, true
	case "openSettings":
		return &OpenSettings{}, true
	case "switchTab":
		return &SwitchTab{}, true
	case "prepareRegionSelection":
		return &PrepareRegionSelection{}, true
	case "prepareWindowSelection":
		return &PrepareWindowSelection{}, true
	case "prepareScreenRecording":
		return &PrepareScreenRecording{}, true
	case "quitApp":
		return &QuitApp{}, true
	default:
		return nil, false
	}
}

// deref returns the value variant so callers can type-switch without
// caring about pointers.
func deref(m Message) Message {
	switch v := m.(type) {
	case *ShowFloatingBall:
		return *v
	case *HideFloatingBall:
		return *v
	case *SetRecordingState:
		return *v
	case *SetPausedState:
		return *v
	case *SetTrackingState:
		return *v
	case *OpenQuickChat:
		return *v
	case *OpenVideos:
		return *v
	case *OpenSettings:
		return *v
	case *SwitchTab:
		return *v
	case *PrepareRegionSelection:
		return *v
	case *PrepareWindowSelection:
		return *v
	case *PrepareScreenRecording:
		return *v
	case *QuitApp:
		return *v
	default:
		return m
	}
}
