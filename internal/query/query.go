// SPDX-License-Identifier: MIT

// Package query answers questions about the captured history. Retrieval
// fuses vector similarity over frame embeddings with keyword search over
// OCR text, summaries and tags; chat wraps retrieval into a conversation
// with the runtime's chat model.
package query

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/ingest"
	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
	"github.com/memscreen/memscreen/internal/vector"
)

const (
	// rrfConstant is the smoothing constant of reciprocal-rank fusion.
	rrfConstant = 60

	// vectorOverfetch widens the vector candidate pool relative to k so
	// fusion has real choices.
	vectorOverfetch = 4

	// snippetLimit caps snippet text taken from artifact bodies.
	snippetLimit = 160
)

// Store is the slice of the metadata store the engine reads.
type Store interface {
	SearchKeyword(ctx context.Context, terms []string, limit int) ([]store.KeywordHit, error)
	GetRecording(ctx context.Context, id string) (*types.Recording, error)
	GetFrameArtifact(ctx context.Context, id string) (*types.FrameArtifact, error)

	ActiveThread(ctx context.Context) (*types.ChatThread, error)
	CreateThread(ctx context.Context, title string) (*types.ChatThread, error)
	GetThread(ctx context.Context, id string) (*types.ChatThread, error)
	AppendMessage(ctx context.Context, threadID string, role types.ChatRole, content string) (*types.ChatMessage, error)
	RecentMessages(ctx context.Context, threadID string, n int) ([]types.ChatMessage, error)
}

var _ Store = (*store.Store)(nil)

// Vectors is the slice of the vector store the engine queries.
type Vectors interface {
	Query(ctx context.Context, collection string, vec []float32, k int, f vector.Filter) ([]vector.Hit, error)
}

var _ Vectors = (*vector.Store)(nil)

// Runtime is the slice of the model runtime the engine calls.
type Runtime interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
	Chat(ctx context.Context, model string, messages []runtime.Message) (string, error)
	ChatStream(ctx context.Context, model string, messages []runtime.Message) (<-chan runtime.Chunk, error)
}

var _ Runtime = (*runtime.Client)(nil)

// Config carries the retrieval and chat policy.
type Config struct {
	EmbeddingModel string

	// ChatModel resolves the active chat model per request, so a settings
	// change applies without restart.
	ChatModel func() string

	// HistoryWindow is how many recent messages feed the chat context.
	// Zero means 12.
	HistoryWindow int

	// ContextSnippets is how many retrieval snippets feed the chat
	// context. Zero means 6.
	ContextSnippets int
}

// Engine runs retrieval and chat. Construct with New.
type Engine struct {
	cfg     Config
	store   Store
	vectors Vectors
	runtime Runtime
	logger  zerolog.Logger
}

// New wires a query engine.
func New(cfg Config, st Store, vs Vectors, rt Runtime, logger zerolog.Logger) *Engine {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 12
	}
	if cfg.ContextSnippets <= 0 {
		cfg.ContextSnippets = 6
	}
	return &Engine{cfg: cfg, store: st, vectors: vs, runtime: rt, logger: logger}
}

// Hit is one fused retrieval result. Artifact is nil when the match came
// from recording-level text only.
type Hit struct {
	Recording *types.Recording     `json:"recording"`
	Artifact  *types.FrameArtifact `json:"artifact,omitempty"`
	Snippet   string               `json:"snippet"`
	Score     float64              `json:"score"`
}

// Retrieve returns the top k history hits for a free-text query,
// fusing vector and keyword rankings by reciprocal rank. An unreachable
// runtime degrades to keyword-only retrieval.
func (e *Engine) Retrieve(ctx context.Context, q string, k int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" || k <= 0 {
		return nil, nil
	}

	vecHits := e.vectorCandidates(ctx, q, k*vectorOverfetch)

	kwHits, err := e.store.SearchKeyword(ctx, strings.Fields(q), k)
	if err != nil {
		metrics.IncSearchRequest("failed")
		return nil, err
	}

	hits, err := e.fuse(ctx, vecHits, kwHits, k)
	if err != nil {
		metrics.IncSearchRequest("failed")
		return nil, err
	}
	metrics.IncSearchRequest("completed")
	return hits, nil
}

// vectorCandidates embeds the query and ranks frame vectors. Failures
// are logged and degrade to an empty candidate list; keyword search
// still answers.
func (e *Engine) vectorCandidates(ctx context.Context, q string, k int) []vector.Hit {
	vec, err := e.runtime.Embed(ctx, e.cfg.EmbeddingModel, q)
	if err != nil {
		e.logger.Debug().Err(err).Msg("query embedding unavailable, keyword-only retrieval")
		return nil
	}
	hits, err := e.vectors.Query(ctx, ingest.CollectionName(e.cfg.EmbeddingModel), vec, k, vector.Filter{})
	if err != nil {
		if !errors.Is(err, vector.ErrNotFound) {
			e.logger.Warn().Err(err).Msg("vector query failed, keyword-only retrieval")
		}
		return nil
	}
	return hits
}

// fusedCandidate accumulates RRF score across rankings for one artifact
// or recording.
type fusedCandidate struct {
	recordingID string
	artifactID  string
	snippet     string
	score       float64
}

// fuse merges the two rankings with reciprocal-rank fusion and
// materializes the winners. Ties break by recording recency, then id,
// keeping retrieval deterministic for a fixed store state.
func (e *Engine) fuse(ctx context.Context, vecHits []vector.Hit, kwHits []store.KeywordHit, k int) ([]Hit, error) {
	byKey := make(map[string]*fusedCandidate)

	add := func(key, recordingID, artifactID, snippet string, rank int) {
		c, ok := byKey[key]
		if !ok {
			c = &fusedCandidate{recordingID: recordingID, artifactID: artifactID}
			byKey[key] = c
		}
		c.score += 1 / float64(rrfConstant+rank)
		if c.snippet == "" {
			c.snippet = snippet
		}
	}

	for i, h := range vecHits {
		add(h.ID, h.Metadata.RecordingID, h.ID, "", i+1)
	}
	for i, h := range kwHits {
		key := h.ArtifactID
		if key == "" {
			key = "rec:" + h.RecordingID
		}
		add(key, h.RecordingID, h.ArtifactID, h.Snippet, i+1)
	}

	candidates := make([]*fusedCandidate, 0, len(byKey))
	for _, c := range byKey {
		candidates = append(candidates, c)
	}

	recordings := make(map[string]*types.Recording)
	for _, c := range candidates {
		if _, ok := recordings[c.recordingID]; ok {
			continue
		}
		rec, err := e.store.GetRecording(ctx, c.recordingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // deleted while ranking
			}
			return nil, err
		}
		recordings[c.recordingID] = rec
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ra, rb := recordings[a.recordingID], recordings[b.recordingID]
		if ra != nil && rb != nil && !ra.StartTime.Equal(rb.StartTime) {
			return ra.StartTime.After(rb.StartTime)
		}
		if a.recordingID != b.recordingID {
			return a.recordingID < b.recordingID
		}
		return a.artifactID < b.artifactID
	})

	var out []Hit
	for _, c := range candidates {
		if len(out) == k {
			break
		}
		rec := recordings[c.recordingID]
		if rec == nil {
			continue
		}
		hit := Hit{Recording: rec, Snippet: c.snippet, Score: c.score}
		if c.artifactID != "" {
			art, err := e.store.GetFrameArtifact(ctx, c.artifactID)
			if err == nil {
				hit.Artifact = art
				if hit.Snippet == "" {
					hit.Snippet = artifactSnippet(art)
				}
			}
		}
		if hit.Snippet == "" {
			hit.Snippet = truncate(rec.ContentSummary, snippetLimit)
		}
		out = append(out, hit)
	}
	return out, nil
}

func artifactSnippet(a *types.FrameArtifact) string {
	text := a.OCRText
	if text == "" {
		text = a.VisionDescription
	}
	return truncate(strings.Join(strings.Fields(text), " "), snippetLimit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "…"
}
