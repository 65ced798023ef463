// SPDX-License-Identifier: MIT

// Package recorder drives one screen recording at a time through its
// lifecycle: acquire capture and audio, pace frames into the encoder,
// persist metadata, hand the finished recording to analysis.
//
// The orchestrator is a small state machine (idle, preparing, recording,
// stopping, finalizing). The recording loop runs on a single goroutine;
// every interval it pulls one frame from the capture stream and sends it
// into the encoder's bounded channel, dropping the frame when the encoder
// lags. Stop requests take effect at the next tick. Metadata is written
// only after the output file is closed.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/audio"
	"github.com/memscreen/memscreen/internal/capture"
	"github.com/memscreen/memscreen/internal/encoder"
	"github.com/memscreen/memscreen/internal/input"
	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
)

const (
	// frameBufferCap bounds how many frames may queue for the encoder
	// before the loop starts dropping.
	frameBufferCap = 8

	// persistTimeout bounds the metadata writes that close out a
	// recording; they run on a background context.
	persistTimeout = 10 * time.Second
)

// Store is the slice of the metadata store the orchestrator needs.
type Store interface {
	PutRecording(ctx context.Context, rec *types.Recording) (string, error)
	UpdateRecording(ctx context.Context, id string, patch types.RecordingPatch) error
	GetRecording(ctx context.Context, id string) (*types.Recording, error)
	ListRecordings(ctx context.Context, f store.RecordingFilter) ([]types.Recording, error)
}

var _ Store = (*store.Store)(nil)

// Encoder finalizes a frame stream into a video file.
type Encoder interface {
	Available() bool
	Encode(ctx context.Context, opts encoder.Options, frames <-chan *capture.Frame) (*encoder.Result, error)
}

var _ Encoder = (*encoder.Encoder)(nil)

// InputTracker is the slice of the input tracker used for auto-tracking.
type InputTracker interface {
	Start() error
	MarkStart()
	Status() input.Status
	SaveFromTracking(ctx context.Context) (*types.InputSession, error)
}

var _ InputTracker = (*input.Tracker)(nil)

// Ingestor receives ids of recordings ready for analysis.
type Ingestor interface {
	Enqueue(recordingID string)
}

// Config carries the recording policy and target directories.
type Config struct {
	VideosDir   string
	ScratchRoot string

	DefaultDuration time.Duration
	DefaultInterval time.Duration
	DefaultAudio    types.AudioSource

	// AutoTrackInput starts an input tracking session alongside each
	// recording when a tracker is wired.
	AutoTrackInput bool
}

// Deps are the components the orchestrator drives. Tracker and Ingest
// are optional.
type Deps struct {
	Capture capture.Backend
	Audio   audio.Backend
	Store   Store
	Encoder Encoder
	Tracker InputTracker
	Ingest  Ingestor
	Logger  zerolog.Logger
}

// Orchestrator runs at most one recording at a time. Construct with New.
type Orchestrator struct {
	cfg     Config
	capture capture.Backend
	audio   audio.Backend
	store   Store
	enc     Encoder
	tracker InputTracker
	ingest  Ingestor
	logger  zerolog.Logger

	mu      sync.Mutex
	phase   types.RecordingPhase
	cur     *session
	lastErr string
	closed  bool
	subs    map[int]chan Status
	nextSub int
}

// New wires an orchestrator. It performs no I/O; the first recording
// does.
func New(cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		capture: deps.Capture,
		audio:   deps.Audio,
		store:   deps.Store,
		enc:     deps.Encoder,
		tracker: deps.Tracker,
		ingest:  deps.Ingest,
		logger:  deps.Logger,
		phase:   types.PhaseIdle,
		subs:    make(map[int]chan Status),
	}
}

// StartRequest selects what and how long to record. Zero durations and
// intervals fall back to the configured defaults; a nil AudioSource uses
// the configured default, while an explicit AudioNone stays silent.
type StartRequest struct {
	Mode     types.CaptureMode
	Duration time.Duration
	Interval time.Duration

	AudioSource *types.AudioSource

	DisplayID   string
	ScreenIndex *int
	WindowTitle string
	Region      *types.Rect
}

func (o *Orchestrator) normalize(req StartRequest) (StartRequest, error) {
	if req.Mode == "" {
		req.Mode = types.ModeFullscreen
	}
	if !req.Mode.IsValid() {
		return req, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.Duration <= 0 {
		req.Duration = o.cfg.DefaultDuration
	}
	if req.Interval <= 0 {
		req.Interval = o.cfg.DefaultInterval
	}
	if req.Duration <= 0 || req.Interval <= 0 {
		return req, fmt.Errorf("%w: duration and interval must be positive", ErrInvalidRequest)
	}
	if req.AudioSource == nil {
		src := o.cfg.DefaultAudio
		if src == "" {
			src = types.AudioNone
		}
		req.AudioSource = &src
	}

	switch req.Mode {
	case types.ModeFullscreenSingle:
		if req.DisplayID == "" && req.ScreenIndex == nil {
			return req, fmt.Errorf("%w: single-display capture needs a display id or screen index", ErrInvalidRequest)
		}
	case types.ModeRegion:
		if req.WindowTitle == "" {
			if req.Region == nil || req.Region.Empty() {
				return req, fmt.Errorf("%w: region capture needs a region or a window title", ErrInvalidRequest)
			}
		}
	}
	return req, nil
}

// Start begins a new recording. It returns once the recording is running;
// the rest of the lifecycle proceeds in the background. ErrBusy is
// returned while another recording is active.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) error {
	req, err := o.normalize(req)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.phase != types.PhaseIdle {
		o.mu.Unlock()
		return ErrBusy
	}
	o.phase = types.PhasePreparing
	o.lastErr = ""
	o.publishLocked()
	o.mu.Unlock()

	sess, err := o.prepare(ctx, req)
	if err != nil {
		o.mu.Lock()
		o.phase = types.PhaseIdle
		o.lastErr = err.Error()
		o.publishLocked()
		o.mu.Unlock()
		o.logger.Error().Err(err).Msg("recording preparation failed")
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.phase = types.PhaseIdle
		o.mu.Unlock()
		o.abortPrepared(sess)
		return ErrClosed
	}
	o.phase = types.PhaseRecording
	o.cur = sess
	o.publishLocked()
	o.mu.Unlock()

	metrics.IncRecordingStarted()
	metrics.SetRecordingActive(true)
	o.logger.Info().
		Str("recording_id", sess.id).
		Stringer("target", sess.target).
		Dur("duration", sess.duration).
		Dur("interval", sess.interval).
		Str("audio", sess.resolved.String()).
		Msg("recording started")

	go o.run(sess)
	return nil
}

// Stop ends the active recording at its next tick. The recording then
// finalizes in the background.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	sess := o.cur
	o.mu.Unlock()
	if sess == nil {
		return ErrNotRecording
	}
	sess.stop()
	return nil
}

// Close stops any active recording and waits for it to finalize. Past
// the ctx deadline the encoder is aborted instead of awaited. No new
// recording can start afterwards.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	sess := o.cur
	o.mu.Unlock()
	if sess == nil {
		return nil
	}

	sess.stop()
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		sess.cancel()
		<-sess.done
		return ctx.Err()
	}
}

// session carries everything owned by one recording attempt. Progress
// counters are guarded by the orchestrator mutex.
type session struct {
	id          string
	mode        types.CaptureMode
	target      capture.Target
	windowTitle string
	region      *types.Rect
	interval    time.Duration
	duration    time.Duration
	fps         float64
	outputPath  string
	scratchDir  string
	width       int
	height      int

	stream     capture.FrameStream
	audio      *audio.Capture
	resolved   types.AudioSource
	trackInput bool

	startedAt time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopc    chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	frames  int
	dropped int
	level   float64
}

func (s *session) stop() {
	s.stopOnce.Do(func() { close(s.stopc) })
}

func (o *Orchestrator) prepare(ctx context.Context, req StartRequest) (*session, error) {
	if !o.enc.Available() {
		return nil, encoder.ErrUnavailable
	}
	if err := os.MkdirAll(o.cfg.VideosDir, 0o700); err != nil {
		return nil, fmt.Errorf("create videos dir: %w", err)
	}

	target, displayID, err := o.resolveTarget(req)
	if err != nil {
		return nil, err
	}

	stream, err := o.capture.Open(target, req.Interval)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	width, height := stream.Size()

	var ac *audio.Capture
	resolved := types.AudioNone
	if *req.AudioSource != types.AudioNone {
		ac, err = o.audio.Open(*req.AudioSource)
		if err != nil {
			o.logger.Warn().Err(err).Msg("audio open failed, recording without audio")
			ac = nil
		} else {
			resolved = ac.Resolved()
		}
	}

	release := func() {
		_ = stream.Close()
		if ac != nil {
			ac.Stop()
		}
	}

	id := uuid.NewString()
	rec := &types.Recording{
		ID:                id,
		StartTime:         time.Now().UTC(),
		FPS:               1 / req.Interval.Seconds(),
		AudioSource:       resolved,
		Mode:              req.Mode,
		TargetDisplayID:   displayID,
		TargetWindowTitle: req.WindowTitle,
		RegionRect:        req.Region,
		AnalysisState:     types.AnalysisPending,
	}
	if _, err := o.store.PutRecording(ctx, rec); err != nil {
		release()
		return nil, fmt.Errorf("create recording row: %w", err)
	}

	trackInput := false
	if o.cfg.AutoTrackInput && o.tracker != nil {
		switch {
		case o.tracker.Status().IsTracking:
			// A session the user started stays theirs; do not rebind it.
			o.logger.Debug().Msg("input tracking already active, not attaching to recording")
		default:
			if err := o.tracker.Start(); err != nil {
				o.logger.Warn().Err(err).Msg("auto input tracking unavailable")
			} else {
				o.tracker.MarkStart()
				trackInput = true
			}
		}
	}

	sctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:          id,
		mode:        req.Mode,
		target:      target,
		windowTitle: req.WindowTitle,
		region:      req.Region,
		interval:    req.Interval,
		duration:    req.Duration,
		fps:         1 / req.Interval.Seconds(),
		outputPath:  filepath.Join(o.cfg.VideosDir, id+".mp4"),
		scratchDir:  filepath.Join(o.cfg.ScratchRoot, id),
		width:       width,
		height:      height,
		stream:      stream,
		audio:       ac,
		resolved:    resolved,
		trackInput:  trackInput,
		startedAt:   rec.StartTime,
		ctx:         sctx,
		cancel:      cancel,
		stopc:       make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// resolveTarget maps a start request onto a capture target, returning
// the display id recorded in metadata when one is involved.
func (o *Orchestrator) resolveTarget(req StartRequest) (capture.Target, string, error) {
	switch req.Mode {
	case types.ModeFullscreenSingle:
		id := req.DisplayID
		if id == "" {
			displays, err := o.capture.ListDisplays()
			if err != nil {
				return capture.Target{}, "", fmt.Errorf("list displays: %w", err)
			}
			for _, d := range displays {
				if d.Index == *req.ScreenIndex {
					id = d.DisplayID
					break
				}
			}
			if id == "" {
				return capture.Target{}, "", fmt.Errorf("%w: screen index %d", capture.ErrTargetNotFound, *req.ScreenIndex)
			}
		}
		return capture.DisplayByID(id), id, nil

	case types.ModeRegion:
		if req.WindowTitle != "" {
			return capture.WindowByTitle(req.WindowTitle), "", nil
		}
		r := req.Region
		rect := capture.Rect{X: r.X, Y: r.Y, Width: r.W, Height: r.H}
		return capture.RegionOn(req.DisplayID, rect), req.DisplayID, nil

	default:
		return capture.FullScreen(), "", nil
	}
}

// abortPrepared releases a session that never started recording.
func (o *Orchestrator) abortPrepared(sess *session) {
	_ = sess.stream.Close()
	if sess.audio != nil {
		sess.audio.Stop()
	}
	sess.cancel()
	o.markFailed(sess, "recorder shut down during preparation")
}

type encodeOutcome struct {
	res *encoder.Result
	err error
}

// run owns the recording from the first frame to the idle transition.
func (o *Orchestrator) run(sess *session) {
	started := time.Now()
	outcome := "failed"

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("recording_id", sess.id).Interface("panic", r).Msg("recording loop panicked")
			o.markFailed(sess, fmt.Sprintf("internal error: %v", r))
		}
		_ = sess.stream.Close()
		if sess.audio != nil {
			sess.audio.Stop()
		}
		sess.cancel()

		metrics.RecordRecordingFinished(outcome, time.Since(started).Seconds())
		metrics.SetRecordingActive(false)

		o.mu.Lock()
		o.phase = types.PhaseIdle
		o.cur = nil
		o.publishLocked()
		o.mu.Unlock()
		close(sess.done)
	}()

	res, err := o.record(sess)
	switch {
	case err == nil:
		if ferr := o.finalize(sess, res); ferr != nil {
			o.markFailed(sess, ferr.Error())
		} else {
			outcome = "completed"
		}
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
		o.markFailed(sess, "recording aborted")
	default:
		o.markFailed(sess, err.Error())
	}
}

// record runs the capture loop and waits for the encoder to finish. It
// returns the encode result, or the first fatal error.
func (o *Orchestrator) record(sess *session) (*encoder.Result, error) {
	frames := make(chan *capture.Frame, frameBufferCap)
	encDone := make(chan encodeOutcome, 1)

	opts := encoder.Options{
		OutputPath: sess.outputPath,
		ScratchDir: sess.scratchDir,
		Width:      sess.width,
		Height:     sess.height,
		FPS:        sess.fps,
		Interval:   sess.interval,
	}
	if ac := sess.audio; ac != nil {
		// The encoder consults this exactly once, after the frame stream
		// closes; stopping here performs the final flush.
		opts.Audio = func() ([]byte, time.Duration) {
			ac.Stop()
			return ac.WAV(), ac.Duration()
		}
	}

	go func() {
		res, err := o.enc.Encode(sess.ctx, opts, frames)
		encDone <- encodeOutcome{res: res, err: err}
	}()

	ticker := time.NewTicker(sess.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(sess.duration)
	defer deadline.Stop()

	var enc *encodeOutcome
	reason := ""

loop:
	for {
		select {
		case <-sess.stopc:
			reason = "stop"
			break loop
		case <-deadline.C:
			reason = "duration"
			break loop
		case e := <-encDone:
			enc = &e
			reason = "encoder_exit"
			break loop
		case <-ticker.C:
			if err := o.pullFrame(sess, frames); err != nil {
				reason = closeReason(err)
				break loop
			}
		}
	}

	o.setPhase(types.PhaseStopping)
	o.logger.Info().Str("recording_id", sess.id).Str("reason", reason).Msg("recording stopping")

	close(frames)
	_ = sess.stream.Close()

	if enc == nil {
		e := <-encDone
		enc = &e
	}
	return enc.res, enc.err
}

// pullFrame grabs one frame and forwards it to the encoder, dropping it
// when the encoder queue is full. A nil return means the loop continues.
func (o *Orchestrator) pullFrame(sess *session, frames chan<- *capture.Frame) error {
	ctx, cancel := context.WithTimeout(sess.ctx, sess.interval)
	frame, err := sess.stream.Next(ctx)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrTimeout):
		return nil
	default:
		return err
	}

	select {
	case frames <- frame:
		o.mu.Lock()
		sess.frames++
		if sess.audio != nil {
			sess.level = sess.audio.Level()
		}
		o.publishLocked()
		o.mu.Unlock()
	default:
		metrics.AddFramesDropped("encode", 1)
		o.mu.Lock()
		sess.dropped++
		o.mu.Unlock()
	}
	return nil
}

// finalize persists the completed recording's metadata and hands it to
// analysis. The output file is already closed when this runs.
func (o *Orchestrator) finalize(sess *session, res *encoder.Result) error {
	o.setPhase(types.PhaseFinalizing)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	end := sess.startedAt.Add(res.Duration)
	durSec := res.Duration.Seconds()
	if err := o.store.UpdateRecording(ctx, sess.id, types.RecordingPatch{
		EndTime:         &end,
		FrameCount:      &res.FrameCount,
		FPS:             &res.EffectiveFPS,
		DurationSeconds: &durSec,
		FilePath:        &sess.outputPath,
	}); err != nil {
		return fmt.Errorf("persist recording metadata: %w", err)
	}

	if sess.trackInput && o.tracker != nil {
		if _, err := o.tracker.SaveFromTracking(ctx); err != nil && !errors.Is(err, input.ErrNoSession) {
			o.logger.Warn().Err(err).Str("recording_id", sess.id).Msg("input session save failed")
		}
	}

	if o.ingest != nil {
		o.ingest.Enqueue(sess.id)
	}

	o.logger.Info().
		Str("recording_id", sess.id).
		Str("file", sess.outputPath).
		Int("frames", res.FrameCount).
		Float64("fps", res.EffectiveFPS).
		Bool("audio", res.AudioMuxed).
		Msg("recording finished")
	return nil
}

// markFailed records the failure reason in memory and on the row.
func (o *Orchestrator) markFailed(sess *session, reason string) {
	o.mu.Lock()
	o.lastErr = reason
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	state := types.AnalysisFailed
	if err := o.store.UpdateRecording(ctx, sess.id, types.RecordingPatch{AnalysisState: &state}); err != nil {
		o.logger.Error().Err(err).Str("recording_id", sess.id).Msg("could not mark recording failed")
	}
	o.logger.Error().Str("recording_id", sess.id).Str("reason", reason).Msg("recording failed")
}

func (o *Orchestrator) setPhase(p types.RecordingPhase) {
	o.mu.Lock()
	if !o.phase.CanTransitionTo(p) {
		o.logger.Warn().Stringer("from", o.phase).Stringer("to", p).Msg("unexpected phase transition")
	}
	o.phase = p
	o.publishLocked()
	o.mu.Unlock()
}

// closeReason turns a stream error into the stop reason used in logs.
func closeReason(err error) string {
	var closed *capture.ClosedError
	switch {
	case errors.As(err, &closed):
		return closed.Reason
	case errors.Is(err, context.Canceled):
		return "aborted"
	default:
		return "stream_error: " + err.Error()
	}
}
