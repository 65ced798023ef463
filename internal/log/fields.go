// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRecordingID = "recording_id"
	FieldThreadID    = "thread_id"
	FieldSessionID   = "session_id"
	FieldRequestID   = "request_id"
	FieldJobID       = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media fields
	FieldFPS        = "fps"
	FieldFrames     = "frames"
	FieldResolution = "resolution"
	FieldModel      = "model"
	FieldCollection = "collection"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
