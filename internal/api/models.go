// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/types"
)

// catalogResponse reports runtime reachability and the state of every
// model this configuration needs.
type catalogResponse struct {
	BaseURL        string               `json:"base_url"`
	RuntimeReady   bool                 `json:"runtime_ready"`
	RuntimeError   string               `json:"runtime_error,omitempty"`
	ModelsDisabled bool                 `json:"models_disabled"`
	Models         []types.CatalogEntry `json:"models"`
}

func (s *Server) handleModelsCatalog(w http.ResponseWriter, r *http.Request) {
	installed, runtimeErr := s.deps.Runtime.Catalog(r.Context())

	resp := catalogResponse{
		BaseURL:      s.deps.Runtime.BaseURL(),
		RuntimeReady: runtimeErr == "",
		RuntimeError: runtimeErr,
		Models:       []types.CatalogEntry{},
	}

	required := []types.CatalogEntry{
		{Name: s.deps.Settings.EffectiveChatModel(s.cfg.App), Purpose: types.PurposeChat, Required: false},
		{Name: s.cfg.App.VisionModel, Purpose: types.PurposeVision, Required: false},
		{Name: s.cfg.App.EmbeddingModel, Purpose: types.PurposeEmbedding, Required: true},
	}

	configured := 0
	for _, entry := range required {
		if entry.Name == "" {
			continue
		}
		configured++
		if name, ok := findInstalled(installed, entry.Name); ok {
			entry.Installed = true
			entry.InstalledName = name
		}
		resp.Models = append(resp.Models, entry)
	}
	resp.ModelsDisabled = configured == 0

	writeJSON(w, http.StatusOK, resp)
}

// findInstalled matches a configured model name against the runtime's
// tag list. A bare name matches any tag of the same model.
func findInstalled(installed []runtime.ModelCatalogEntry, want string) (string, bool) {
	wantBase := strings.SplitN(want, ":", 2)[0]
	for _, m := range installed {
		if m.Name == want {
			return m.Name, true
		}
		if strings.SplitN(m.Name, ":", 2)[0] == wantBase {
			return m.Name, true
		}
	}
	return "", false
}

type downloadRequest struct {
	Model      string  `json:"model"`
	TimeoutSec float64 `json:"timeout_sec,omitempty"`
}

// handleModelsDownload pulls a model through the runtime. The pull is
// unbounded by default; an explicit timeout_sec caps it.
func (s *Server) handleModelsDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Model == "" {
		s.writeError(w, r, fmt.Errorf("%w: model is required", recorder.ErrInvalidRequest))
		return
	}

	ctx := r.Context()
	if body.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(body.TimeoutSec*float64(time.Second)))
		defer cancel()
	}

	if err := s.deps.Runtime.EnsureModel(ctx, body.Model); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
