// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/memscreen/memscreen/internal/input"
	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/types"
)

func (s *Server) tracker(w http.ResponseWriter, r *http.Request) (Tracker, bool) {
	if s.deps.Tracker == nil {
		s.writeError(w, r, fmt.Errorf("%w: input tracking not available on this platform", errUnavailable))
		return nil, false
	}
	return s.deps.Tracker, true
}

func (s *Server) handleTrackingStart(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.tracker(w, r)
	if !ok {
		return
	}
	if err := tracker.Start(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleTrackingStop(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.tracker(w, r)
	if !ok {
		return
	}
	tracker.Stop()
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleTrackingMarkStart(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.tracker(w, r)
	if !ok {
		return
	}
	tracker.MarkStart()
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleTrackingStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tracker == nil {
		writeJSON(w, http.StatusOK, input.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Tracker.Status())
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.ListInputSessions(r.Context(), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []types.InputSession{}
	}
	writeJSON(w, http.StatusOK, map[string][]types.InputSession{"sessions": sessions})
}

// sessionCreateRequest imports a session the client captured itself,
// for example on a platform where the daemon has no event tap.
type sessionCreateRequest struct {
	Events    []types.InputEvent `json:"events"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
}

func (s *Server) handleSessionsCreate(w http.ResponseWriter, r *http.Request) {
	var body sessionCreateRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.StartTime.IsZero() || body.EndTime.IsZero() || body.EndTime.Before(body.StartTime) {
		s.writeError(w, r, fmt.Errorf("%w: start_time and end_time must form a valid interval", recorder.ErrInvalidRequest))
		return
	}

	session, err := s.deps.Store.SaveInputSession(r.Context(), body.StartTime, body.EndTime, body.Events)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSessionsDeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted := 0
	for {
		sessions, err := s.deps.Store.ListInputSessions(r.Context(), 500)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(sessions) == 0 {
			break
		}
		for _, session := range sessions {
			n, err := s.deps.Store.DeleteInputSession(r.Context(), session.ID)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			deleted += n
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.deps.Store.GetInputSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.deps.Store.ListInputEvents(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []types.InputEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"events":  events,
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.DeleteInputSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleSessionAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.deps.Store.GetInputSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.deps.Store.ListInputEvents(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, input.Analyze(session, events))
}

func (s *Server) handleSessionsFromTracking(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.tracker(w, r)
	if !ok {
		return
	}
	session, err := tracker.SaveFromTracking(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events_saved": session.EventCount,
		"start_time":   session.StartTime,
		"end_time":     session.EndTime,
	})
}
