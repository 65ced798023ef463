// SPDX-License-Identifier: MIT

package audio

import "github.com/memscreen/memscreen/internal/types"

// Diagnosis reports audio capability for a requested source.
type Diagnosis struct {
	BackendAvailable      bool   `json:"backend_available"`
	MicrophoneAvailable   bool   `json:"microphone_available"`
	SystemDeviceAvailable bool   `json:"system_device_available"`
	SystemSignalAvailable bool   `json:"system_signal_available"`
	Message               string `json:"message"`
	RecommendedAction     string `json:"recommended_action"`
}

// summarize fills Message and RecommendedAction for the requested source
// from the probed booleans.
func (d *Diagnosis) summarize(requested types.AudioSource) {
	switch {
	case !d.BackendAvailable:
		d.Message = "audio backend is not reachable"
		d.RecommendedAction = "start PulseAudio or PipeWire with PulseAudio compatibility, then retry"

	case requested == types.AudioNone:
		d.Message = "audio capture is disabled for this recording"
		d.RecommendedAction = ""

	case requested.WantsMicrophone() && requested.WantsSystem() &&
		!d.MicrophoneAvailable && !d.SystemDeviceAvailable:
		d.Message = "neither a microphone nor a system audio device was found"
		d.RecommendedAction = "connect an input device or enable a sink monitor; the recording will be silent otherwise"

	case requested.WantsMicrophone() && !d.MicrophoneAvailable:
		d.Message = "no microphone input device was found"
		d.RecommendedAction = "connect a microphone or switch the audio source to system_audio"

	case requested.WantsSystem() && !d.SystemDeviceAvailable:
		d.Message = "no system audio device was found"
		d.RecommendedAction = "enable a monitor for the default output or switch the audio source to microphone"

	case requested.WantsSystem() && !d.SystemSignalAvailable:
		d.Message = "the system audio device is present but currently produces no signal"
		d.RecommendedAction = "play some audio to verify the monitor, or record anyway"

	default:
		d.Message = "audio capture is ready"
		d.RecommendedAction = ""
	}
}
