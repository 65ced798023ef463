// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// RecordingPhase represents the current state of the recording orchestrator.
type RecordingPhase string

// Recording phase constants define all orchestrator states.
const (
	// PhaseIdle indicates no recording is active.
	PhaseIdle RecordingPhase = "idle"

	// PhasePreparing indicates capture resources are being acquired.
	PhasePreparing RecordingPhase = "preparing"

	// PhaseRecording indicates frames are being captured.
	PhaseRecording RecordingPhase = "recording"

	// PhaseStopping indicates capture ended and the encoder is finishing.
	PhaseStopping RecordingPhase = "stopping"

	// PhaseFinalizing indicates the file is closed and metadata is persisted.
	PhaseFinalizing RecordingPhase = "finalizing"
)

// String implements fmt.Stringer.
func (p RecordingPhase) String() string {
	return string(p)
}

// IsValid checks whether the phase is one of the defined constants.
func (p RecordingPhase) IsValid() bool {
	switch p {
	case PhaseIdle, PhasePreparing, PhaseRecording, PhaseStopping, PhaseFinalizing:
		return true
	default:
		return false
	}
}

// IsActive checks whether a recording is in flight in this phase.
func (p RecordingPhase) IsActive() bool {
	switch p {
	case PhasePreparing, PhaseRecording, PhaseStopping, PhaseFinalizing:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether this phase can transition to the target.
//
// Valid transitions:
//   - Idle → Preparing
//   - Preparing → Recording, Idle
//   - Recording → Stopping
//   - Stopping → Finalizing, Idle
//   - Finalizing → Idle
func (p RecordingPhase) CanTransitionTo(target RecordingPhase) bool {
	switch p {
	case PhaseIdle:
		return target == PhasePreparing
	case PhasePreparing:
		return target == PhaseRecording || target == PhaseIdle
	case PhaseRecording:
		return target == PhaseStopping
	case PhaseStopping:
		return target == PhaseFinalizing || target == PhaseIdle
	case PhaseFinalizing:
		return target == PhaseIdle
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (p RecordingPhase) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *RecordingPhase) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	phase := RecordingPhase(str)
	if !phase.IsValid() {
		return fmt.Errorf("invalid recording phase: %q", str)
	}

	*p = phase
	return nil
}
