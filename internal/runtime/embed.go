// SPDX-License-Identifier: MIT

package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/memscreen/memscreen/internal/metrics"
)

const embedCacheTTL = 24 * time.Hour

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func embedKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embed:%s:%x", model, sum)
}

// Embed returns the embedding vector for a single text. Results are
// memoized per (model, text), so repeated calls are free and
// deterministic.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds several texts in one runtime call. Cached entries
// are served locally; only the misses travel. result[i] corresponds to
// texts[i]. On any error no partial results are returned.
func (c *Client) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.embeds.Get(embedKey(model, text)); ok {
			metrics.IncEmbedCacheHit()
			result[i] = vec
			continue
		}
		metrics.IncEmbedCacheMiss()
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return result, nil
	}

	vecs, err := c.callEmbed(ctx, model, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embed: expected %d embeddings, got %d", len(missing), len(vecs))
	}
	for j, vec := range vecs {
		result[missingIdx[j]] = vec
		c.embeds.Set(embedKey(model, missing[j]), vec, embedCacheTTL)
	}
	return result, nil
}

func (c *Client) callEmbed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := c.embedOnce(ctx, model, texts)
	metrics.RecordRuntimeRequest("embed", err, time.Since(start).Seconds())
	return vecs, err
}

func (c *Client) embedOnce(ctx context.Context, model string, texts []string) ([][]float32, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	resp, err := c.postJSON(ctx, "/api/embed", embedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.responseError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if out.Error != "" {
		return nil, &StatusError{Code: resp.StatusCode, Message: out.Error}
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return out.Embeddings, nil
}

// Dimensions reports the vector length the model produces. Well-known
// embedding models resolve from a table; anything else is probed with
// a single embed call, once per model.
func (c *Client) Dimensions(ctx context.Context, model string) (int, error) {
	if d := knownDimensions(model); d > 0 {
		return d, nil
	}
	if v, ok := c.dims.Load(model); ok {
		return v.(int), nil
	}

	v, err, _ := c.group.Do("dims:"+model, func() (any, error) {
		if v, ok := c.dims.Load(model); ok {
			return v.(int), nil
		}
		vec, err := c.Embed(ctx, model, "probe")
		if err != nil {
			return 0, err
		}
		c.dims.Store(model, len(vec))
		return len(vec), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	case strings.Contains(lower, "all-minilm"):
		return 384
	default:
		return 0
	}
}
