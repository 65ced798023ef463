// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/memscreen/memscreen/internal/config"
	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
)

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	reply, threadID, err := s.deps.Chat.Chat(r.Context(), body.ThreadID, body.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reply":     reply,
		"thread_id": threadID,
	})
}

// chatStreamEvent is one SSE frame of a streamed reply: deltas carry
// Chunk, the terminal frame carries Done and the full text.
type chatStreamEvent struct {
	Chunk    string `json:"chunk,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Full     string `json:"full,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	chunks, threadID, err := s.deps.Chat.ChatStream(r.Context(), body.ThreadID, body.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metrics.AddSSESubscriber("chat", 1)
	defer metrics.AddSSESubscriber("chat", -1)

	for chunk := range chunks {
		var event chatStreamEvent
		switch {
		case chunk.Err != nil:
			event = chatStreamEvent{Error: chunk.Err.Error(), Done: true}
		case chunk.Done:
			event = chatStreamEvent{Done: true, Full: chunk.Content, ThreadID: threadID}
		default:
			event = chatStreamEvent{Chunk: chunk.Delta}
		}
		if err := sse.Send(event); err != nil {
			return
		}
		if event.Done {
			return
		}
	}
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var body chatRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return body, false
	}
	if body.Message == "" {
		s.writeError(w, r, fmt.Errorf("%w: message is required", recorder.ErrInvalidRequest))
		return body, false
	}
	if s.deps.Chat == nil {
		s.writeError(w, r, fmt.Errorf("%w: chat engine not running", errUnavailable))
		return body, false
	}
	return body, true
}

func (s *Server) handleChatModels(w http.ResponseWriter, r *http.Request) {
	entries, _ := s.deps.Runtime.Catalog(r.Context())
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": names})
}

func (s *Server) handleChatModelGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"model": s.deps.Settings.EffectiveChatModel(s.cfg.App),
	})
}

func (s *Server) handleChatModelPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Model == "" {
		s.writeError(w, r, fmt.Errorf("%w: model is required", recorder.ErrInvalidRequest))
		return
	}
	if err := s.deps.Settings.Update(func(set *config.Settings) { set.ChatModel = body.Model }); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"model": body.Model})
}

// historyMessage is the wire shape of one chat message.
type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		thread, err := s.deps.Store.ActiveThread(r.Context())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string][]historyMessage{"messages": {}})
				return
			}
			s.writeError(w, r, err)
			return
		}
		threadID = thread.ID
	}

	messages, err := s.deps.Store.History(r.Context(), threadID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]historyMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, historyMessage{
			Role:      m.Role.String(),
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]historyMessage{"messages": out})
}

func (s *Server) handleThreadsList(w http.ResponseWriter, r *http.Request) {
	threads, err := s.deps.Store.ListThreads(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if threads == nil {
		threads = []types.ChatThread{}
	}
	writeJSON(w, http.StatusOK, map[string][]types.ChatThread{"threads": threads})
}

func (s *Server) handleThreadsCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	thread, err := s.deps.Store.CreateThread(r.Context(), body.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleThreadsUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ThreadID  string `json:"thread_id"`
		Title     string `json:"title,omitempty"`
		SetActive bool   `json:"set_active,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.ThreadID == "" {
		s.writeError(w, r, fmt.Errorf("%w: thread_id is required", recorder.ErrInvalidRequest))
		return
	}

	if body.Title != "" {
		if err := s.deps.Store.RenameThread(r.Context(), body.ThreadID, body.Title); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if body.SetActive {
		if err := s.deps.Store.SetActiveThread(r.Context(), body.ThreadID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	thread, err := s.deps.Store.GetThread(r.Context(), body.ThreadID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}
