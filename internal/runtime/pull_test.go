// SPDX-License-Identifier: MIT

package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureModelSuccess(t *testing.T) {
	var gotModel string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pull", r.URL.Path)
		var req pullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		assert.True(t, req.Stream)

		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"status": "pulling manifest"})
		_ = enc.Encode(map[string]any{"status": "downloading", "digest": "sha256:abc", "total": 100, "completed": 40})
		_ = enc.Encode(map[string]any{"status": "downloading", "digest": "sha256:abc", "total": 100, "completed": 100})
		_ = enc.Encode(map[string]any{"status": "success"})
	}))

	err := c.EnsureModel(context.Background(), "llava:latest")
	require.NoError(t, err)
	assert.Equal(t, "llava:latest", gotModel)
}

func TestEnsureModelReportsRuntimeError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"status": "pulling manifest"})
		_ = enc.Encode(map[string]any{"error": "pull model manifest: file does not exist"})
	}))

	err := c.EnsureModel(context.Background(), "no-such-model")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Contains(t, statusErr.Message, "file does not exist")
}

func TestEnsureModelHeartbeatAbortsStalledPull(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"status": "pulling manifest"})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Stall until the client gives up.
		<-r.Context().Done()
	}))
	c.heartbeat = 100 * time.Millisecond

	start := time.Now()
	err := c.EnsureModel(context.Background(), "stalled-model")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "no pull progress")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEnsureModelStreamEndsWithoutSuccess(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"status": "pulling manifest"})
		_ = enc.Encode(map[string]any{"status": "downloading", "digest": "sha256:abc", "total": 100, "completed": 10})
	}))

	err := c.EnsureModel(context.Background(), "truncated-model")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestEnsureModelSharesInFlightPull(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(150 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.EnsureModel(context.Background(), "shared-model")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent pulls of one model should share a request")
	for i, err := range errs {
		assert.NoError(t, err, fmt.Sprintf("caller %d", i))
	}
}

func TestEnsureModelRuntimeDown(t *testing.T) {
	c := downClient(t)
	err := c.EnsureModel(context.Background(), "any-model")
	require.ErrorIs(t, err, ErrUnavailable)
}
