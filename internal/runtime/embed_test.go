// SPDX-License-Identifier: MIT

package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreen/internal/cache"
)

// embedHandler answers /api/embed with one vector per input whose
// first component is the input's length, and counts requests.
type embedHandler struct {
	calls atomic.Int32

	mu        sync.Mutex
	lastInput []string
}

func (h *embedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/embed" {
		http.NotFound(w, r)
		return
	}
	h.calls.Add(1)

	var req embedRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	h.mu.Lock()
	h.lastInput = append([]string(nil), req.Input...)
	h.mu.Unlock()

	vecs := make([][]float32, len(req.Input))
	for i, text := range req.Input {
		vecs[i] = []float32{float32(len(text)), 1}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
}

func (h *embedHandler) inputs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastInput
}

func TestEmbedMemoizesPerModelAndText(t *testing.T) {
	handler := &embedHandler{}
	c := newTestClient(t, handler, WithEmbedCache(cache.NewMemoryCache(32, 0)))
	ctx := context.Background()

	v1, err := c.Embed(ctx, "nomic-embed-text", "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, v1)
	assert.Equal(t, int32(1), handler.calls.Load())

	v2, err := c.Embed(ctx, "nomic-embed-text", "hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), handler.calls.Load(), "identical text should be served from cache")

	_, err = c.Embed(ctx, "all-minilm", "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(2), handler.calls.Load(), "a different model is a different cache key")
}

func TestEmbedBatchSendsOnlyMisses(t *testing.T) {
	handler := &embedHandler{}
	c := newTestClient(t, handler, WithEmbedCache(cache.NewMemoryCache(32, 0)))
	ctx := context.Background()

	_, err := c.Embed(ctx, "nomic-embed-text", "aa")
	require.NoError(t, err)
	require.Equal(t, int32(1), handler.calls.Load())

	got, err := c.EmbedBatch(ctx, "nomic-embed-text", []string{"aa", "bbb", "cccc"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float32{2, 1}, got[0])
	assert.Equal(t, []float32{3, 1}, got[1])
	assert.Equal(t, []float32{4, 1}, got[2])
	assert.Equal(t, int32(2), handler.calls.Load())
	assert.Equal(t, []string{"bbb", "cccc"}, handler.inputs(), "cached texts must not travel")

	// Everything cached now, no further requests.
	_, err = c.EmbedBatch(ctx, "nomic-embed-text", []string{"aa", "bbb", "cccc"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), handler.calls.Load())
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	handler := &embedHandler{}
	c := newTestClient(t, handler)

	got, err := c.EmbedBatch(context.Background(), "m", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int32(0), handler.calls.Load())
}

func TestEmbedRuntimeDown(t *testing.T) {
	c := downClient(t)
	_, err := c.Embed(context.Background(), "m", "text")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDimensionsKnownModels(t *testing.T) {
	// Known models never need a live runtime.
	c := New("http://127.0.0.1:1")
	ctx := context.Background()

	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
	}
	for _, tt := range tests {
		got, err := c.Dimensions(ctx, tt.model)
		require.NoError(t, err, tt.model)
		assert.Equal(t, tt.want, got, tt.model)
	}
}

func TestDimensionsProbesUnknownModelOnce(t *testing.T) {
	handler := &embedHandler{}
	c := newTestClient(t, handler)
	ctx := context.Background()

	got, err := c.Dimensions(ctx, "custom-embedder")
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, int32(1), handler.calls.Load())

	got, err = c.Dimensions(ctx, "custom-embedder")
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, int32(1), handler.calls.Load(), "probe result should be cached")
}

func TestDimensionsProbeFailure(t *testing.T) {
	c := downClient(t)
	_, err := c.Dimensions(context.Background(), "custom-embedder")
	require.ErrorIs(t, err, ErrUnavailable)
}
