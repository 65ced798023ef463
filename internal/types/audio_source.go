// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// AudioSource identifies which audio channels a recording carries.
type AudioSource string

// Audio source constants.
const (
	// AudioNone disables audio capture.
	AudioNone AudioSource = "none"

	// AudioMicrophone captures the default input device.
	AudioMicrophone AudioSource = "microphone"

	// AudioSystem captures the system output (monitor of the default sink).
	AudioSystem AudioSource = "system"

	// AudioMixed captures microphone and system audio mixed into one channel.
	AudioMixed AudioSource = "mixed"
)

// String implements fmt.Stringer.
func (a AudioSource) String() string {
	return string(a)
}

// IsValid checks whether the audio source is one of the defined constants.
func (a AudioSource) IsValid() bool {
	switch a {
	case AudioNone, AudioMicrophone, AudioSystem, AudioMixed:
		return true
	default:
		return false
	}
}

// WantsMicrophone reports whether the source includes the microphone channel.
func (a AudioSource) WantsMicrophone() bool {
	return a == AudioMicrophone || a == AudioMixed
}

// WantsSystem reports whether the source includes the system channel.
func (a AudioSource) WantsSystem() bool {
	return a == AudioSystem || a == AudioMixed
}

// MarshalJSON implements json.Marshaler.
func (a AudioSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON implements json.Unmarshaler. Accepts the configuration
// spelling "system_audio" as an alias for "system".
func (a *AudioSource) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	src, err := ParseAudioSource(str)
	if err != nil {
		return err
	}

	*a = src
	return nil
}

// ParseAudioSource parses a string into an AudioSource. The configuration
// spelling "system_audio" is accepted as an alias for "system"; an empty
// string parses as "none".
func ParseAudioSource(s string) (AudioSource, error) {
	switch s {
	case "":
		return AudioNone, nil
	case "system_audio":
		return AudioSystem, nil
	}
	src := AudioSource(s)
	if !src.IsValid() {
		return "", fmt.Errorf("invalid audio source: %q", s)
	}
	return src, nil
}
