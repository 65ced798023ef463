// SPDX-License-Identifier: MIT

package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/memscreen/memscreen/internal/metrics"
)

// ModelCatalogEntry describes one model installed in the runtime.
type ModelCatalogEntry struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type tagsResponse struct {
	Models []ModelCatalogEntry `json:"models"`
}

// Catalog lists installed models. An unreachable runtime is not an
// error here: the list comes back empty together with a description of
// the failure for the API to surface.
func (c *Client) Catalog(ctx context.Context) ([]ModelCatalogEntry, string) {
	start := time.Now()
	entries, err := c.catalogOnce(ctx)
	metrics.RecordRuntimeRequest("tags", err, time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn().Err(err).Msg("model catalog unavailable")
		return []ModelCatalogEntry{}, err.Error()
	}
	return entries, ""
}

func (c *Client) catalogOnce(ctx context.Context) ([]ModelCatalogEntry, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, unavailable(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.responseError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	if out.Models == nil {
		out.Models = []ModelCatalogEntry{}
	}
	return out.Models, nil
}
