// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rect is a rectangle in display coordinates. It serializes as the
// 4-tuple [x, y, w, h] used by the client protocol.
type Rect struct {
	X int
	Y int
	W int
	H int
}

// MarshalJSON implements json.Marshaler.
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X, r.Y, r.W, r.H})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rect) UnmarshalJSON(data []byte) error {
	var tuple []int
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 4 {
		return fmt.Errorf("region rect must have 4 elements, got %d", len(tuple))
	}
	r.X, r.Y, r.W, r.H = tuple[0], tuple[1], tuple[2], tuple[3]
	return nil
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Within reports whether r lies fully inside the bounds rectangle.
func (r Rect) Within(bounds Rect) bool {
	return r.X >= bounds.X && r.Y >= bounds.Y &&
		r.X+r.W <= bounds.X+bounds.W && r.Y+r.H <= bounds.Y+bounds.H
}

// Recording is one completed capture. Rows are created by the recording
// orchestrator and advanced by the ingestion pipeline; nothing else
// mutates them.
type Recording struct {
	ID                string        `json:"id"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	FrameCount        int           `json:"frame_count"`
	FPS               float64       `json:"fps"`
	DurationSeconds   float64       `json:"duration_seconds"`
	FilePath          string        `json:"file_path,omitempty"`
	AudioSource       AudioSource   `json:"audio_source"`
	Mode              CaptureMode   `json:"mode"`
	TargetDisplayID   string        `json:"target_display_id,omitempty"`
	TargetWindowTitle string        `json:"target_window_title,omitempty"`
	RegionRect        *Rect         `json:"region_rect,omitempty"`
	AppName           string        `json:"app_name,omitempty"`
	ContentSummary    string        `json:"content_summary,omitempty"`
	ContentTags       []string      `json:"content_tags"`
	UserTags          []string      `json:"user_tags"`
	AnalysisState     AnalysisState `json:"analysis_state"`
}

// RecordingPatch carries the mutable subset of recording attributes.
// Nil fields are left untouched.
type RecordingPatch struct {
	AnalysisState   *AnalysisState
	ContentSummary  *string
	ContentTags     *[]string
	UserTags        *[]string
	AppName         *string
	EndTime         *time.Time
	FPS             *float64
	FrameCount      *int
	DurationSeconds *float64
	FilePath        *string
}

// FrameArtifact is the analyzed record of one sampled frame. Image bytes
// are not retained; only text and the embedding reference survive.
type FrameArtifact struct {
	ID                string    `json:"id"`
	RecordingID       string    `json:"recording_id"`
	TOffsetSeconds    float64   `json:"t_offset_seconds"`
	OCRText           string    `json:"ocr_text"`
	VisionDescription string    `json:"vision_description"`
	EmbeddingRef      string    `json:"embedding_ref"`
	CreatedAt         time.Time `json:"created_at"`
}

// ChatThread is a conversation with the assistant. At most one thread is
// active at a time.
type ChatThread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}

// ChatMessage is one message inside a thread, totally ordered by Ordinal.
type ChatMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Ordinal   int       `json:"ordinal"`
}

// InputSession is a contiguous interval of input tracking.
type InputSession struct {
	ID             string    `json:"id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	EventCount     int       `json:"event_count"`
	KeystrokeCount int       `json:"keystroke_count"`
	ClickCount     int       `json:"click_count"`
}

// InputEvent is one captured keyboard or mouse event.
type InputEvent struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	T         time.Time      `json:"t"`
	Kind      InputEventKind `json:"kind"`
	Payload   string         `json:"payload"`
}

// CatalogEntry describes one model the runtime advertises or requires.
type CatalogEntry struct {
	Name          string       `json:"name"`
	Purpose       ModelPurpose `json:"purpose"`
	Required      bool         `json:"required"`
	Installed     bool         `json:"installed"`
	InstalledName string       `json:"installed_name,omitempty"`
}
