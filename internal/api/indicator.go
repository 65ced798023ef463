// SPDX-License-Identifier: MIT

package api

import (
	"io"
	"net/http"

	"github.com/memscreen/memscreen/internal/indicator"
	"github.com/memscreen/memscreen/internal/log"
)

// indicatorBodyLimit caps the method-channel payload; every defined
// message fits in a fraction of this.
const indicatorBodyLimit = 16 << 10

// handleIndicatorMessage accepts one method-channel message from the
// floating indicator. Messages are hints: the daemon acknowledges and
// logs them, and the client reads authoritative state from the status
// stream. An unknown message is a protocol error, not a no-op.
func (s *Server) handleIndicatorMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, indicatorBodyLimit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := indicator.Decode(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Debug().
		Str("method", msg.Method()).
		Msg("indicator message received")
	writeJSON(w, http.StatusOK, struct{}{})
}
