// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/memscreen/memscreen/internal/capture"
	"github.com/memscreen/memscreen/internal/config"
	"github.com/memscreen/memscreen/internal/log"
	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Health.Last())
}

// configResponse exposes the recognized options and the resolved layout.
type configResponse struct {
	Version string        `json:"version"`
	Config  config.Config `json:"config"`
	Paths   configPaths   `json:"paths"`
}

type configPaths struct {
	Root     string `json:"root"`
	Videos   string `json:"videos"`
	Audio    string `json:"audio"`
	DB       string `json:"db"`
	Logs     string `json:"logs"`
	Settings string `json:"settings_file"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Version: s.cfg.Version,
		Config:  s.cfg.App,
		Paths: configPaths{
			Root:     s.cfg.Paths.Root,
			Videos:   s.cfg.Paths.Videos,
			Audio:    s.cfg.Paths.Audio,
			DB:       s.cfg.Paths.DB,
			Logs:     s.cfg.Paths.Logs,
			Settings: s.cfg.Paths.SettingsFile,
		},
	})
}

// startRequest is the wire shape of /recording/start. Durations are
// seconds; region is the client's [x, y, w, h] tuple.
type startRequest struct {
	Duration        float64     `json:"duration,omitempty"`
	Interval        float64     `json:"interval,omitempty"`
	Mode            string      `json:"mode,omitempty"`
	Region          *types.Rect `json:"region,omitempty"`
	ScreenIndex     *int        `json:"screen_index,omitempty"`
	ScreenDisplayID string      `json:"screen_display_id,omitempty"`
	WindowTitle     string      `json:"window_title,omitempty"`
	AudioSource     string      `json:"audio_source,omitempty"`
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := recorder.StartRequest{
		Duration:    time.Duration(body.Duration * float64(time.Second)),
		Interval:    time.Duration(body.Interval * float64(time.Second)),
		DisplayID:   body.ScreenDisplayID,
		ScreenIndex: body.ScreenIndex,
		WindowTitle: body.WindowTitle,
		Region:      body.Region,
	}
	if body.Mode != "" {
		mode, err := types.ParseCaptureMode(body.Mode)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", recorder.ErrInvalidRequest, err))
			return
		}
		req.Mode = mode
	}
	if body.AudioSource != "" {
		src, err := types.ParseAudioSource(body.AudioSource)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", recorder.ErrInvalidRequest, err))
			return
		}
		req.AudioSource = &src
	}

	if err := s.deps.Recorder.Start(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Recorder.Stop(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Recorder.Status())
}

// handleRecordingStatusStream pushes a status snapshot per orchestrator
// state change over SSE, with keepalive comments in between. The
// indicator and the client status bar both hang off this stream.
func (s *Server) handleRecordingStatusStream(w http.ResponseWriter, r *http.Request) {
	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	updates, cancel := s.deps.Recorder.Subscribe()
	defer cancel()

	metrics.AddSSESubscriber("recording_status", 1)
	defer metrics.AddSSESubscriber("recording_status", -1)

	keepalive := time.NewTicker(sseKeepalive * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.Send(status); err != nil {
				return
			}
		case <-keepalive.C:
			if err := sse.Ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleScreens(w http.ResponseWriter, r *http.Request) {
	displays, err := s.deps.Capture.ListDisplays()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]capture.Display{"screens": displays})
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := s.deps.Capture.ListWindows()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]capture.Window{"windows": windows})
}

func (s *Server) handleAudioDiagnose(w http.ResponseWriter, r *http.Request) {
	requested := types.AudioMixed
	if q := r.URL.Query().Get("source"); q != "" {
		src, err := types.ParseAudioSource(q)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", recorder.ErrInvalidRequest, err))
			return
		}
		requested = src
	}

	diagnosis := s.deps.Audio.Diagnose(requested)
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Debug().
		Str("source", requested.String()).
		Bool("backend", diagnosis.BackendAvailable).
		Msg("audio diagnosis served")
	writeJSON(w, http.StatusOK, diagnosis)
}
