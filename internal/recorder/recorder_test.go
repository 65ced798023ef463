// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreen/internal/audio"
	"github.com/memscreen/memscreen/internal/capture"
	"github.com/memscreen/memscreen/internal/encoder"
	"github.com/memscreen/memscreen/internal/input"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
)

type fakeStore struct {
	mu     sync.Mutex
	recs   map[string]*types.Recording
	putErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]*types.Recording)}
}

func (f *fakeStore) PutRecording(_ context.Context, rec *types.Recording) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	cp := *rec
	f.recs[rec.ID] = &cp
	return rec.ID, nil
}

func (f *fakeStore) UpdateRecording(_ context.Context, id string, patch types.RecordingPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.AnalysisState != nil {
		rec.AnalysisState = *patch.AnalysisState
	}
	if patch.EndTime != nil {
		rec.EndTime = *patch.EndTime
	}
	if patch.FPS != nil {
		rec.FPS = *patch.FPS
	}
	if patch.FrameCount != nil {
		rec.FrameCount = *patch.FrameCount
	}
	if patch.DurationSeconds != nil {
		rec.DurationSeconds = *patch.DurationSeconds
	}
	if patch.FilePath != nil {
		rec.FilePath = *patch.FilePath
	}
	return nil
}

func (f *fakeStore) GetRecording(_ context.Context, id string) (*types.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) ListRecordings(_ context.Context, fl store.RecordingFilter) ([]types.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Recording
	for _, rec := range f.recs {
		if fl.AnalysisState != "" && rec.AnalysisState != fl.AnalysisState {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeStore) get(t *testing.T, id string) types.Recording {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	require.True(t, ok, "recording %s not stored", id)
	return *rec
}

type fakeEncoder struct {
	available bool
	err       error         // returned once the stream closes
	stuck     bool          // ignore the stream, return only on ctx
	perFrame  time.Duration // consumption delay

	mu   sync.Mutex
	opts encoder.Options
}

func (f *fakeEncoder) Available() bool { return f.available }

func (f *fakeEncoder) Encode(ctx context.Context, opts encoder.Options, frames <-chan *capture.Frame) (*encoder.Result, error) {
	f.mu.Lock()
	f.opts = opts
	f.mu.Unlock()

	if f.stuck {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	n := 0
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				if f.err != nil {
					return nil, f.err
				}
				muxed := false
				if opts.Audio != nil {
					wav, _ := opts.Audio()
					muxed = len(wav) > 0
				}
				return &encoder.Result{
					OutputPath:   opts.OutputPath,
					FrameCount:   n,
					EffectiveFPS: 1 / opts.Interval.Seconds(),
					Duration:     time.Duration(n) * opts.Interval,
					AudioMuxed:   muxed,
				}, nil
			}
			n++
			if f.perFrame > 0 {
				time.Sleep(f.perFrame)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *fakeEncoder) lastOpts() encoder.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

type fakeTracker struct {
	mu       sync.Mutex
	tracking bool
	startN   int
	markN    int
	saveN    int
}

func (f *fakeTracker) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startN++
	f.tracking = true
	return nil
}

func (f *fakeTracker) MarkStart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markN++
}

func (f *fakeTracker) Status() input.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return input.Status{IsTracking: f.tracking}
}

func (f *fakeTracker) SaveFromTracking(context.Context) (*types.InputSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveN++
	return &types.InputSession{ID: "input-session"}, nil
}

func (f *fakeTracker) counts() (started, marked, saved int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startN, f.markN, f.saveN
}

type fakeIngest struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIngest) Enqueue(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *fakeIngest) queued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type harness struct {
	o   *Orchestrator
	cfg Config
	st  *fakeStore
	enc *fakeEncoder
	ing *fakeIngest
	syn *capture.Synthetic
}

func newHarness(t *testing.T, mut func(*Config, *Deps)) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		st:  newFakeStore(),
		enc: &fakeEncoder{available: true},
		ing: &fakeIngest{},
		syn: capture.NewSynthetic(64, 48),
	}
	cfg := Config{
		VideosDir:       filepath.Join(dir, "videos"),
		ScratchRoot:     filepath.Join(dir, "tmp"),
		DefaultDuration: 10 * time.Second,
		DefaultInterval: 10 * time.Millisecond,
		DefaultAudio:    types.AudioNone,
	}
	deps := Deps{
		Capture: h.syn,
		Audio:   audio.NewSynthetic(),
		Store:   h.st,
		Encoder: h.enc,
		Ingest:  h.ing,
		Logger:  zerolog.Nop(),
	}
	if mut != nil {
		mut(&cfg, &deps)
	}
	h.cfg = cfg
	h.o = New(cfg, deps)
	return h
}

func waitStatus(t *testing.T, o *Orchestrator, pred func(Status) bool, msg string) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := o.Status()
		if pred(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s (phase=%s)", msg, o.Status().Phase)
	return Status{}
}

func waitIdle(t *testing.T, o *Orchestrator) Status {
	t.Helper()
	return waitStatus(t, o, func(s Status) bool { return s.Phase == types.PhaseIdle }, "orchestrator idle")
}

// assertPhaseOrder checks that the wanted phases appear in order within
// the snapshot stream.
func assertPhaseOrder(t *testing.T, snaps []Status, want []types.RecordingPhase) {
	t.Helper()
	idx := 0
	for _, s := range snaps {
		if idx < len(want) && s.Phase == want[idx] {
			idx++
		}
	}
	require.Equal(t, len(want), idx, "phase sequence %v not observed in %d snapshots", want, len(snaps))
}

func TestRecordUntilDeadline(t *testing.T) {
	h := newHarness(t, nil)

	sub, cancel := h.o.Subscribe()
	defer cancel()
	var mu sync.Mutex
	var snaps []Status
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for s := range sub {
			mu.Lock()
			snaps = append(snaps, s)
			mu.Unlock()
		}
	}()

	require.NoError(t, h.o.Start(context.Background(), StartRequest{
		Duration: 120 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	}))
	waitIdle(t, h.o)
	cancel()
	<-drained

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, types.PhaseIdle, snaps[0].Phase, "subscription primes with the current snapshot")
	assertPhaseOrder(t, snaps, []types.RecordingPhase{
		types.PhasePreparing, types.PhaseRecording, types.PhaseStopping, types.PhaseFinalizing, types.PhaseIdle,
	})

	var id string
	sawFrames := false
	for _, s := range snaps {
		if s.RecordingID != "" {
			id = s.RecordingID
		}
		if s.IsRecording && s.FrameCount >= 1 {
			sawFrames = true
		}
	}
	require.NotEmpty(t, id)
	require.True(t, sawFrames, "at least one frame should be reported while recording")

	rec := h.st.get(t, id)
	require.Equal(t, filepath.Join(h.cfg.VideosDir, id+".mp4"), rec.FilePath)
	require.Greater(t, rec.FrameCount, 0)
	require.False(t, rec.EndTime.IsZero())
	require.Greater(t, rec.DurationSeconds, 0.0)
	require.Equal(t, types.ModeFullscreen, rec.Mode)
	require.Equal(t, types.AnalysisPending, rec.AnalysisState)

	opts := h.enc.lastOpts()
	require.Equal(t, filepath.Join(h.cfg.ScratchRoot, id), opts.ScratchDir)
	require.Equal(t, 64, opts.Width)
	require.Equal(t, 48, opts.Height)
	require.InDelta(t, 100.0, opts.FPS, 1e-9)

	require.Equal(t, []string{id}, h.ing.queued())
	require.Empty(t, h.o.Status().LastError)
}

func TestStartWhileBusy(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.o.Start(context.Background(), StartRequest{}))
	require.ErrorIs(t, h.o.Start(context.Background(), StartRequest{}), ErrBusy)

	require.NoError(t, h.o.Stop())
	waitIdle(t, h.o)
}

func TestStopEndsRecordingEarly(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.o.Start(context.Background(), StartRequest{}))
	s := waitStatus(t, h.o, func(s Status) bool { return s.FrameCount >= 1 }, "first frame")
	id := s.RecordingID

	begun := time.Now()
	require.NoError(t, h.o.Stop())
	waitIdle(t, h.o)
	require.Less(t, time.Since(begun), 2*time.Second, "stop must take effect within one interval")

	rec := h.st.get(t, id)
	require.NotEmpty(t, rec.FilePath)
	require.False(t, rec.EndTime.IsZero())

	require.ErrorIs(t, h.o.Stop(), ErrNotRecording)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.o.normalize(StartRequest{Mode: "sideways"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	require.ErrorIs(t, h.o.Start(ctx, StartRequest{Mode: types.ModeRegion}), ErrInvalidRequest)
	require.ErrorIs(t, h.o.Start(ctx, StartRequest{Mode: types.ModeFullscreenSingle}), ErrInvalidRequest)

	region := &types.Rect{X: -1, Y: 0, W: 0, H: 10}
	require.ErrorIs(t, h.o.Start(ctx, StartRequest{Mode: types.ModeRegion, Region: region}), ErrInvalidRequest)

	err = h.o.Start(ctx, StartRequest{Mode: types.ModeFullscreenSingle, DisplayID: "nope"})
	require.ErrorIs(t, err, capture.ErrTargetNotFound)
	require.Equal(t, types.PhaseIdle, h.o.Status().Phase)
	require.NotEmpty(t, h.o.Status().LastError)
}

func TestEncoderFailureMarksFailed(t *testing.T) {
	h := newHarness(t, func(*Config, *Deps) {})
	h.enc.err = errors.New("ffmpeg exploded")

	require.NoError(t, h.o.Start(context.Background(), StartRequest{Duration: 60 * time.Millisecond}))
	waitIdle(t, h.o)

	var id string
	for rid := range h.st.recs {
		id = rid
	}
	rec := h.st.get(t, id)
	require.Equal(t, types.AnalysisFailed, rec.AnalysisState)
	require.Empty(t, rec.FilePath)

	require.Contains(t, h.o.Status().LastError, "ffmpeg exploded")
	require.Empty(t, h.ing.queued(), "failed recordings are not analyzed")
}

func TestEncoderUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.enc.available = false

	err := h.o.Start(context.Background(), StartRequest{})
	require.ErrorIs(t, err, encoder.ErrUnavailable)
	require.Equal(t, types.PhaseIdle, h.o.Status().Phase)
	require.Empty(t, h.st.recs, "no row is created when the encoder is missing")
}

func TestWindowTargetGoneFinishesRecording(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.o.Start(context.Background(), StartRequest{
		Mode:        types.ModeRegion,
		WindowTitle: "Synthetic Terminal",
	}))
	s := waitStatus(t, h.o, func(s Status) bool { return s.FrameCount >= 2 }, "frames flowing")
	id := s.RecordingID

	h.syn.RemoveWindow("Synthetic Terminal")
	waitIdle(t, h.o)

	rec := h.st.get(t, id)
	require.NotEmpty(t, rec.FilePath, "a vanished target still yields a finished recording")
	require.Equal(t, types.ModeRegion, rec.Mode)
	require.Equal(t, "Synthetic Terminal", rec.TargetWindowTitle)
}

func TestSlowEncoderDropsFrames(t *testing.T) {
	h := newHarness(t, nil)
	h.enc.perFrame = 40 * time.Millisecond

	require.NoError(t, h.o.Start(context.Background(), StartRequest{Interval: 5 * time.Millisecond}))
	waitStatus(t, h.o, func(s Status) bool { return s.DroppedFrames >= 1 }, "encoder backpressure drop")

	require.NoError(t, h.o.Stop())
	waitIdle(t, h.o)
}

func TestAutoTrackInput(t *testing.T) {
	t.Run("attaches when tracker idle", func(t *testing.T) {
		tr := &fakeTracker{}
		h := newHarness(t, func(cfg *Config, d *Deps) {
			cfg.AutoTrackInput = true
			d.Tracker = tr
		})

		require.NoError(t, h.o.Start(context.Background(), StartRequest{Duration: 60 * time.Millisecond}))
		waitIdle(t, h.o)

		started, marked, saved := tr.counts()
		require.Equal(t, 1, started)
		require.Equal(t, 1, marked)
		require.Equal(t, 1, saved)
	})

	t.Run("leaves a running session alone", func(t *testing.T) {
		tr := &fakeTracker{tracking: true}
		h := newHarness(t, func(cfg *Config, d *Deps) {
			cfg.AutoTrackInput = true
			d.Tracker = tr
		})

		require.NoError(t, h.o.Start(context.Background(), StartRequest{Duration: 60 * time.Millisecond}))
		waitIdle(t, h.o)

		started, marked, saved := tr.counts()
		require.Zero(t, started)
		require.Zero(t, marked)
		require.Zero(t, saved)
	})
}

func TestRecordsResolvedAudioSource(t *testing.T) {
	h := newHarness(t, nil)

	src := types.AudioSystem
	require.NoError(t, h.o.Start(context.Background(), StartRequest{
		Duration:    80 * time.Millisecond,
		AudioSource: &src,
	}))
	s := waitStatus(t, h.o, func(s Status) bool { return s.IsRecording && s.RecordingID != "" }, "session visible")
	require.Equal(t, types.AudioSystem, s.AudioSource)
	id := s.RecordingID
	waitIdle(t, h.o)

	rec := h.st.get(t, id)
	require.Equal(t, types.AudioSystem, rec.AudioSource)
	require.NotNil(t, h.enc.lastOpts().Audio)
}

func TestCloseFinalizesActiveRecording(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.o.Start(context.Background(), StartRequest{}))
	s := waitStatus(t, h.o, func(s Status) bool { return s.FrameCount >= 1 }, "first frame")
	id := s.RecordingID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.o.Close(ctx))

	rec := h.st.get(t, id)
	require.NotEmpty(t, rec.FilePath, "a graceful close still finalizes the file")

	require.ErrorIs(t, h.o.Start(context.Background(), StartRequest{}), ErrClosed)
}

func TestCloseAbortsStuckEncoder(t *testing.T) {
	h := newHarness(t, nil)
	h.enc.stuck = true

	require.NoError(t, h.o.Start(context.Background(), StartRequest{}))
	s := waitStatus(t, h.o, func(s Status) bool { return s.FrameCount >= 1 }, "first frame")
	id := s.RecordingID

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.o.Close(ctx), context.DeadlineExceeded)

	rec := h.st.get(t, id)
	require.Equal(t, types.AnalysisFailed, rec.AnalysisState)
	require.Equal(t, types.PhaseIdle, h.o.Status().Phase)
}

func TestCloseWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.o.Close(context.Background()))
	require.ErrorIs(t, h.o.Start(context.Background(), StartRequest{}), ErrClosed)
}
