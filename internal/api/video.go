// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memscreen/memscreen/internal/ingest"
	"github.com/memscreen/memscreen/internal/log"
	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
	"github.com/memscreen/memscreen/internal/vector"
)

// videoEntry is the library listing shape the client renders.
type videoEntry struct {
	Filename       string              `json:"filename"`
	Timestamp      time.Time           `json:"timestamp"`
	FrameCount     int                 `json:"frame_count"`
	FPS            float64             `json:"fps"`
	Duration       float64             `json:"duration"`
	FileSize       int64               `json:"file_size"`
	RecordingMode  types.CaptureMode   `json:"recording_mode"`
	WindowTitle    string              `json:"window_title,omitempty"`
	AudioSource    types.AudioSource   `json:"audio_source"`
	AppName        string              `json:"app_name,omitempty"`
	Tags           []string            `json:"tags"`
	ContentTags    []string            `json:"content_tags"`
	ContentSummary string              `json:"content_summary,omitempty"`
	AnalysisState  types.AnalysisState `json:"analysis_state"`
}

func (s *Server) handleVideoList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Store.ListRecordings(r.Context(), store.RecordingFilter{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	videos := make([]videoEntry, 0, len(recs))
	for _, rec := range recs {
		if rec.FilePath == "" {
			continue // never finished encoding
		}
		entry := videoEntry{
			Filename:       filepath.Base(rec.FilePath),
			Timestamp:      rec.StartTime,
			FrameCount:     rec.FrameCount,
			FPS:            rec.FPS,
			Duration:       rec.DurationSeconds,
			RecordingMode:  rec.Mode,
			WindowTitle:    rec.TargetWindowTitle,
			AudioSource:    rec.AudioSource,
			AppName:        rec.AppName,
			Tags:           emptyWhenNil(rec.UserTags),
			ContentTags:    emptyWhenNil(rec.ContentTags),
			ContentSummary: rec.ContentSummary,
			AnalysisState:  rec.AnalysisState,
		}
		if info, err := os.Stat(rec.FilePath); err == nil {
			entry.FileSize = info.Size()
		}
		videos = append(videos, entry)
	}
	writeJSON(w, http.StatusOK, map[string][]videoEntry{"videos": videos})
}

type filenameRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleVideoReanalyze(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.resolveVideo(w, r)
	if !ok {
		return
	}
	if s.deps.Ingest == nil {
		s.writeError(w, r, fmt.Errorf("%w: analysis pipeline not running", errUnavailable))
		return
	}
	if err := s.deps.Ingest.TryEnqueue(rec.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleVideoPlayable(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.resolveVideo(w, r)
	if !ok {
		return
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: video file missing on disk", store.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": rec.FilePath})
}

// handleVideoDelete cascades: video and audio files, scratch remnants,
// vectors, frame artifacts, then the metadata row. File removal is
// best-effort; the metadata row is authoritative and goes last so a
// partial delete stays visible and retryable.
func (s *Server) handleVideoDelete(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.resolveVideo(w, r)
	if !ok {
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")

	for _, path := range []string{
		rec.FilePath,
		s.cfg.Paths.AudioFile(rec.ID),
	} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("file removal failed during delete")
		}
	}
	if err := os.RemoveAll(s.cfg.Paths.ScratchDir(rec.ID)); err != nil {
		logger.Warn().Err(err).Str(log.FieldRecordingID, rec.ID).Msg("scratch removal failed during delete")
	}

	if s.deps.Vectors != nil {
		collection := ingest.CollectionName(s.cfg.App.EmbeddingModel)
		if _, err := s.deps.Vectors.DeleteByFilter(r.Context(), collection, vector.Filter{RecordingID: rec.ID}); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if _, err := s.deps.Store.DeleteFrameArtifacts(r.Context(), rec.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.DeleteRecording(r.Context(), rec.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.Info().Str(log.FieldRecordingID, rec.ID).Msg("recording deleted")
	writeJSON(w, http.StatusOK, struct{}{})
}

// resolveVideo decodes the {filename} body and loads the recording it
// names. Filenames embed the recording id, so resolution is a suffix
// strip, never a directory scan.
func (s *Server) resolveVideo(w http.ResponseWriter, r *http.Request) (*types.Recording, bool) {
	var body filenameRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if body.Filename == "" {
		s.writeError(w, r, fmt.Errorf("%w: filename is required", recorder.ErrInvalidRequest))
		return nil, false
	}

	base := filepath.Base(body.Filename)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	rec, err := s.deps.Store.GetRecording(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return rec, true
}

func emptyWhenNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
