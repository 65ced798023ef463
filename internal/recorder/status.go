// SPDX-License-Identifier: MIT

package recorder

import (
	"time"

	"github.com/memscreen/memscreen/internal/types"
)

// subscriberBuffer is the per-subscriber channel depth. A slow consumer
// loses intermediate snapshots, never the stream.
const subscriberBuffer = 16

// Status is one consistent snapshot of the orchestrator. Session fields
// are zero outside an active recording.
type Status struct {
	Phase       types.RecordingPhase `json:"phase"`
	IsRecording bool                 `json:"is_recording"`

	RecordingID     string            `json:"recording_id,omitempty"`
	Mode            types.CaptureMode `json:"mode,omitempty"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	ElapsedSeconds  float64           `json:"elapsed_seconds"`
	DurationSeconds float64           `json:"duration_seconds"`
	FrameCount      int               `json:"frame_count"`
	DroppedFrames   int               `json:"dropped_frames"`
	AudioSource     types.AudioSource `json:"audio_source"`
	AudioLevel      float64           `json:"audio_level"`

	// LastError carries the failure reason of the most recent recording
	// attempt, cleared by the next start.
	LastError string `json:"last_error,omitempty"`
}

// Status returns a consistent snapshot of the orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe registers a status listener. The current snapshot is
// delivered first; every later state change follows. The returned cancel
// func unregisters and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, subscriberBuffer)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (o *Orchestrator) snapshotLocked() Status {
	s := Status{
		Phase:       o.phase,
		IsRecording: o.phase.IsActive(),
		AudioSource: types.AudioNone,
		LastError:   o.lastErr,
	}
	if sess := o.cur; sess != nil {
		started := sess.startedAt
		s.RecordingID = sess.id
		s.Mode = sess.mode
		s.StartedAt = &started
		s.ElapsedSeconds = time.Since(started).Seconds()
		s.DurationSeconds = sess.duration.Seconds()
		s.FrameCount = sess.frames
		s.DroppedFrames = sess.dropped
		s.AudioSource = sess.resolved
		s.AudioLevel = sess.level
	}
	return s
}

// publishLocked fans the current snapshot out to all subscribers. Sends
// never block; a full subscriber simply misses this snapshot. Callers
// hold o.mu.
func (o *Orchestrator) publishLocked() {
	snap := o.snapshotLocked()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
