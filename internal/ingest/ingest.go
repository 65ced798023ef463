// SPDX-License-Identifier: MIT

// Package ingest turns finished recordings into searchable artifacts: it
// samples representative frames, extracts OCR text and vision
// descriptions, embeds the combined text, and writes frame artifacts to
// the metadata store and vectors to the vector store.
//
// Work arrives by recording id on a bounded queue and is drained by a
// fixed pool of workers. Runtime calls are rate limited so an analysis
// burst never starves interactive chat.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
	"github.com/memscreen/memscreen/internal/vector"
)

// queueDepth bounds the analysis backlog. Recordings finish far slower
// than workers drain, so the queue only fills when the runtime is down.
const queueDepth = 64

// Store is the slice of the metadata store the pipeline needs.
type Store interface {
	GetRecording(ctx context.Context, id string) (*types.Recording, error)
	UpdateRecording(ctx context.Context, id string, patch types.RecordingPatch) error
	ListRecordings(ctx context.Context, f store.RecordingFilter) ([]types.Recording, error)
	PutFrameArtifacts(ctx context.Context, recordingID string, artifacts []types.FrameArtifact) error
	DeleteFrameArtifacts(ctx context.Context, recordingID string) (int, error)
}

var _ Store = (*store.Store)(nil)

// Vectors is the slice of the vector store the pipeline needs.
type Vectors interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, records []vector.Record) error
	DeleteByFilter(ctx context.Context, collection string, f vector.Filter) (int, error)
}

var _ Vectors = (*vector.Store)(nil)

// Runtime is the slice of the model runtime client the pipeline needs.
type Runtime interface {
	DescribeImage(ctx context.Context, model, prompt string, imagePNG []byte) (string, error)
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error)
	Chat(ctx context.Context, model string, messages []runtime.Message) (string, error)
}

var _ Runtime = (*runtime.Client)(nil)

// Config carries the analysis policy.
type Config struct {
	VisionModel    string
	EmbeddingModel string
	ChatModel      string

	// FrameStride selects every Nth cached frame; first and last are
	// always included.
	FrameStride int

	// Workers is the number of recordings analyzed in parallel.
	Workers int

	// ScratchRoot is where the encoder caches keyframes per recording.
	ScratchRoot string

	// FFmpegBin decodes saved videos when no keyframe cache survives.
	// Empty disables the decode fallback.
	FFmpegBin string

	// TesseractBin runs OCR. Empty skips OCR entirely.
	TesseractBin string

	// RuntimeRate caps model-runtime calls per second. Zero means 2/s.
	RuntimeRate rate.Limit
}

// Deps are the stores and clients the pipeline writes through.
type Deps struct {
	Store   Store
	Vectors Vectors
	Runtime Runtime
	Logger  zerolog.Logger
}

// Pipeline analyzes recordings in the background. Construct with New,
// start with Run.
type Pipeline struct {
	cfg     Config
	store   Store
	vectors Vectors
	runtime Runtime
	logger  zerolog.Logger
	limiter *rate.Limiter

	queue chan string

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

// New wires a pipeline. No workers run until Run is called.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.FrameStride < 1 {
		cfg.FrameStride = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RuntimeRate <= 0 {
		cfg.RuntimeRate = 2
	}
	return &Pipeline{
		cfg:     cfg,
		store:   deps.Store,
		vectors: deps.Vectors,
		runtime: deps.Runtime,
		logger:  deps.Logger,
		limiter: rate.NewLimiter(cfg.RuntimeRate, 1),
		queue:   make(chan string, queueDepth),
		pending: make(map[string]struct{}),
	}
}

// Enqueue schedules a recording for analysis. A recording already queued
// or being analyzed is not queued twice; a full queue drops the id with
// a warning (the boot drain will pick it up again).
func (p *Pipeline) Enqueue(recordingID string) {
	if err := p.TryEnqueue(recordingID); err != nil {
		p.logger.Warn().Err(err).Str("recording_id", recordingID).Msg("analysis not queued")
	}
}

// TryEnqueue is Enqueue reporting drops to the caller.
func (p *Pipeline) TryEnqueue(recordingID string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if _, dup := p.pending[recordingID]; dup {
		p.mu.Unlock()
		return nil
	}
	p.pending[recordingID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queue <- recordingID:
		return nil
	default:
		p.forget(recordingID)
		return ErrQueueFull
	}
}

func (p *Pipeline) forget(recordingID string) {
	p.mu.Lock()
	delete(p.pending, recordingID)
	p.mu.Unlock()
}

// EnqueuePending schedules every recording whose analysis never
// completed: pending rows with a saved file, plus rows stuck in
// analyzing after a crash. Run once at boot.
func (p *Pipeline) EnqueuePending(ctx context.Context) (int, error) {
	queued := 0
	for _, state := range []types.AnalysisState{types.AnalysisPending, types.AnalysisAnalyzing} {
		recs, err := p.store.ListRecordings(ctx, store.RecordingFilter{AnalysisState: state})
		if err != nil {
			return queued, err
		}
		for _, rec := range recs {
			if rec.FilePath == "" {
				continue
			}
			if err := p.TryEnqueue(rec.ID); err != nil {
				return queued, err
			}
			queued++
		}
	}
	return queued, nil
}

// Run drains the queue with the configured worker pool until ctx is
// cancelled, then waits for in-flight analyses to wind down. In-flight
// work observes the cancellation and rolls back its own writes.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	<-ctx.Done()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	wg.Wait()
	return ctx.Err()
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.queue:
			started := time.Now()
			err := p.analyze(ctx, id)
			p.forget(id)

			outcome := "completed"
			switch {
			case err == nil:
			case ctx.Err() != nil:
				outcome = "cancelled"
			default:
				outcome = "failed"
			}
			p.observe(id, outcome, err, time.Since(started))
		}
	}
}

func (p *Pipeline) observe(id, outcome string, err error, elapsed time.Duration) {
	metrics.RecordAnalysis(outcome, elapsed.Seconds())
	ev := p.logger.Info()
	if err != nil {
		ev = p.logger.Error().Err(err)
	}
	ev.Str("recording_id", id).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Msg("analysis finished")
}
