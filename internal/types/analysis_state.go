// SPDX-License-Identifier: MIT

// Package types provides type-safe enumerations and entity structs for
// memscreen.
//
// This package centralizes typed constants, enums, and the shared data
// model to prevent string-based bugs and enable exhaustive switches.
package types

import (
	"encoding/json"
	"fmt"
)

// AnalysisState represents the ingestion progress of a recording.
type AnalysisState string

// Analysis state constants define all possible states of recording analysis.
const (
	// AnalysisPending indicates the recording has not been analyzed yet.
	AnalysisPending AnalysisState = "pending"

	// AnalysisAnalyzing indicates an ingestion task is working on the recording.
	AnalysisAnalyzing AnalysisState = "analyzing"

	// AnalysisDone indicates frame artifacts and embeddings exist for the recording.
	AnalysisDone AnalysisState = "done"

	// AnalysisFailed indicates ingestion gave up; the video file stays usable.
	AnalysisFailed AnalysisState = "failed"
)

// String implements fmt.Stringer.
func (s AnalysisState) String() string {
	return string(s)
}

// IsValid checks whether the analysis state is one of the defined constants.
func (s AnalysisState) IsValid() bool {
	switch s {
	case AnalysisPending, AnalysisAnalyzing, AnalysisDone, AnalysisFailed:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the state is final. Failed recordings may be
// re-analyzed, which resets the state to pending first.
func (s AnalysisState) IsTerminal() bool {
	switch s {
	case AnalysisDone, AnalysisFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether this state can transition to the target.
//
// Valid transitions:
//   - Pending → Analyzing
//   - Analyzing → Done, Failed
//   - Done, Failed → Pending (re-analysis)
func (s AnalysisState) CanTransitionTo(target AnalysisState) bool {
	switch s {
	case AnalysisPending:
		return target == AnalysisAnalyzing
	case AnalysisAnalyzing:
		return target == AnalysisDone || target == AnalysisFailed
	case AnalysisDone, AnalysisFailed:
		return target == AnalysisPending
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (s AnalysisState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *AnalysisState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	state := AnalysisState(str)
	if !state.IsValid() {
		return fmt.Errorf("invalid analysis state: %q", str)
	}

	*s = state
	return nil
}

// ParseAnalysisState parses a string into an AnalysisState.
func ParseAnalysisState(s string) (AnalysisState, error) {
	state := AnalysisState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid analysis state: %q", s)
	}
	return state, nil
}
