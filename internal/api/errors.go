// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/memscreen/memscreen/internal/capture"
	"github.com/memscreen/memscreen/internal/indicator"
	"github.com/memscreen/memscreen/internal/ingest"
	"github.com/memscreen/memscreen/internal/log"
	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/vector"
)

// errInvalidBody tags JSON decode failures so they map to 400.
var errInvalidBody = errors.New("invalid request body")

// errUnavailable tags operations whose optional dependency is not wired.
var errUnavailable = errors.New("feature unavailable")

// detailResponse is the uniform error shape.
type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, detailResponse{Detail: detail})
}

// writeError maps a component error onto the API's status taxonomy:
// 400 invalid argument, 404 not found, 409 state conflict, 500 the rest.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeDetail(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, recorder.ErrInvalidRequest),
		errors.Is(err, capture.ErrTargetNotFound),
		errors.Is(err, capture.ErrInvalidTarget),
		errors.Is(err, indicator.ErrUnknownMessage):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, vector.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, recorder.ErrBusy),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, recorder.ErrClosed),
		errors.Is(err, ingest.ErrQueueFull),
		errors.Is(err, ingest.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON parses a request body strictly; unknown fields are refused
// so client drift surfaces as 400 instead of silently ignored options.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}
