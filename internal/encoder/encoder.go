// SPDX-License-Identifier: MIT

// Package encoder turns a captured frame stream and optional audio into
// one playable MP4 via an ffmpeg subprocess.
//
// Video is fed as rawvideo RGBA on stdin at the requested frame rate,
// with the previous frame duplicated across capture gaps to preserve
// timing. Every delivered frame is also cached as a PNG keyframe in the
// scratch directory so analysis can skip decoding the video; the scratch
// is preserved when encoding fails. Audio is muxed in a second pass,
// padded or trimmed when it drifts more than 250ms from the video
// duration.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/capture"
	"github.com/memscreen/memscreen/internal/fsutil"
	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/procgroup"
)

const (
	audioTolerance = 250 * time.Millisecond
	stderrLines    = 256
	defaultGrace   = 5 * time.Second

	// maxGapFill bounds how much wall time a capture gap may be padded
	// with duplicate frames, in case the clock jumps.
	maxGapFill = 5 * time.Minute
)

// Encoder runs ffmpeg jobs. Construct with New.
type Encoder struct {
	binPath string
	logger  zerolog.Logger
	grace   time.Duration

	finishWait func(video time.Duration) time.Duration
}

// New returns an encoder using the given ffmpeg binary. An empty path
// means the tool could not be resolved and every job fails with
// ErrUnavailable.
func New(binPath string, logger zerolog.Logger) *Encoder {
	return &Encoder{
		binPath: binPath,
		logger:  logger,
		grace:   defaultGrace,
		finishWait: func(video time.Duration) time.Duration {
			return 2*video + 30*time.Second
		},
	}
}

// Available reports whether an ffmpeg binary was resolved.
func (e *Encoder) Available() bool { return e.binPath != "" }

// Options configure one encode job.
type Options struct {
	// OutputPath is the final MP4 location.
	OutputPath string
	// ScratchDir receives cached keyframes, the intermediate video and
	// the audio track. The caller owns its lifetime.
	ScratchDir string

	Width  int
	Height int

	// FPS is the requested frame rate; Interval is the capture sample
	// interval behind it.
	FPS      float64
	Interval time.Duration

	// Audio is consulted after the frame stream closes. A nil func or
	// an empty WAV yields a video-only file.
	Audio func() (wav []byte, duration time.Duration)
}

func (o Options) validate() error {
	switch {
	case o.OutputPath == "":
		return errors.New("encode: output path required")
	case o.ScratchDir == "":
		return errors.New("encode: scratch dir required")
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("encode: invalid frame size %dx%d", o.Width, o.Height)
	case o.FPS <= 0:
		return fmt.Errorf("encode: invalid frame rate %g", o.FPS)
	case o.Interval <= 0:
		return fmt.Errorf("encode: invalid interval %s", o.Interval)
	}
	return nil
}

// Result describes a finished encode.
type Result struct {
	OutputPath    string
	FrameCount    int           // unique frames delivered
	EffectiveFPS  float64       // min(requested, delivered/duration)
	Duration      time.Duration // video duration of the output file
	AudioMuxed    bool
	AudioAdjusted bool // audio was padded or trimmed to fit
}

// Encode consumes frames until the channel closes, then finalizes the
// output file. Cancelling ctx aborts the subprocess and returns
// ctx.Err().
func (e *Encoder) Encode(ctx context.Context, opts Options, frames <-chan *capture.Frame) (*Result, error) {
	start := time.Now()
	res, err := e.encode(ctx, opts, frames)

	outcome := "completed"
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case err != nil:
		outcome = "failed"
	}
	metrics.RecordEncode(outcome, time.Since(start).Seconds())
	return res, err
}

func (e *Encoder) encode(ctx context.Context, opts Options, frames <-chan *capture.Frame) (*Result, error) {
	if e.binPath == "" {
		return nil, ErrUnavailable
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.ScratchDir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	videoPath := filepath.Join(opts.ScratchDir, "video.mp4")
	stats, err := e.encodeVideo(ctx, opts, frames, videoPath)
	if err != nil {
		return nil, err
	}

	res := &Result{
		OutputPath:   opts.OutputPath,
		FrameCount:   stats.delivered,
		EffectiveFPS: stats.effectiveFPS(opts.FPS, opts.Interval),
		Duration:     stats.fileDuration(opts.Interval),
	}

	var wav []byte
	var audioDur time.Duration
	if opts.Audio != nil {
		wav, audioDur = opts.Audio()
	}
	if len(wav) == 0 {
		if err := moveFile(videoPath, opts.OutputPath); err != nil {
			return nil, fmt.Errorf("place output: %w", err)
		}
		return res, nil
	}

	wavPath := filepath.Join(opts.ScratchDir, "audio.wav")
	if err := os.WriteFile(wavPath, wav, 0o600); err != nil {
		return nil, fmt.Errorf("write audio track: %w", err)
	}

	adjusted, err := e.mux(ctx, videoPath, wavPath, opts.OutputPath, res.Duration, audioDur)
	if err != nil {
		return nil, err
	}
	res.AudioMuxed = true
	res.AudioAdjusted = adjusted
	return res, nil
}

type videoStats struct {
	delivered int
	written   int // delivered plus gap-filling duplicates
}

func (s *videoStats) fileDuration(interval time.Duration) time.Duration {
	return time.Duration(s.written) * interval
}

func (s *videoStats) effectiveFPS(requested float64, interval time.Duration) float64 {
	d := s.fileDuration(interval).Seconds()
	if d <= 0 {
		return 0
	}
	fps := float64(s.delivered) / d
	if fps > requested {
		return requested
	}
	return fps
}

func (e *Encoder) encodeVideo(ctx context.Context, opts Options, frames <-chan *capture.Frame, outPath string) (*videoStats, error) {
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", formatFPS(opts.FPS),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		// Odd capture sizes cannot land in yuv420p unrounded.
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-movflags", "+faststart",
		outPath,
	}

	run, err := e.startProcess(ctx, "encode", args, true)
	if err != nil {
		return nil, err
	}

	stats := &videoStats{}
	manifest := &Manifest{Width: opts.Width, Height: opts.Height}
	frameBytes := opts.Width * opts.Height * 4
	var prev *capture.Frame

feed:
	for {
		select {
		case <-ctx.Done():
			_ = run.stdin.Close()
			_ = run.stop(e.grace)
			return nil, ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				break feed
			}
			if frame == nil {
				continue
			}
			if len(frame.Pixels) != frameBytes {
				_ = run.stdin.Close()
				_ = run.stop(e.grace)
				return nil, fmt.Errorf("frame size mismatch: got %d bytes, want %d", len(frame.Pixels), frameBytes)
			}

			if prev != nil {
				gap := frame.CapturedAt.Sub(prev.CapturedAt)
				if gap > maxGapFill {
					e.logger.Warn().Dur("gap", gap).Msg("capture gap exceeds fill bound, clamping")
					gap = maxGapFill
				}
				if gap > 2*opts.Interval {
					for i := 0; i < int(gap/opts.Interval)-1; i++ {
						if err := run.writeFrame(prev.Pixels); err != nil {
							return nil, e.collectFailure(run, "encode", err)
						}
						stats.written++
					}
				}
			}

			if err := run.writeFrame(frame.Pixels); err != nil {
				return nil, e.collectFailure(run, "encode", err)
			}
			stats.written++
			stats.delivered++

			name, err := writeKeyframe(opts.ScratchDir, stats.delivered, frame)
			if err != nil {
				e.logger.Warn().Err(err).Msg("keyframe cache write failed")
			} else {
				manifest.Frames = append(manifest.Frames, ManifestFrame{File: name, CapturedAt: frame.CapturedAt})
			}
			prev = frame
		}
	}

	_ = run.stdin.Close()
	if stats.delivered == 0 {
		_ = run.stop(e.grace)
		return nil, ErrNoFrames
	}

	if err := fsutil.WriteJSONAtomic(filepath.Join(opts.ScratchDir, ManifestName), manifest); err != nil {
		e.logger.Warn().Err(err).Msg("keyframe manifest write failed")
	}

	if err := e.waitFinish(ctx, run, "encode", stats.fileDuration(opts.Interval)); err != nil {
		return nil, err
	}
	e.logger.Info().
		Int("frames", stats.delivered).
		Int("written", stats.written).
		Msg("video encode finished")
	return stats, nil
}

func (e *Encoder) mux(ctx context.Context, videoPath, wavPath, outPath string, video, audio time.Duration) (bool, error) {
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-i", videoPath,
		"-i", wavPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "128k",
	}

	adjusted := false
	switch delta := audio - video; {
	case delta > audioTolerance:
		e.logger.Warn().Dur("audio", audio).Dur("video", video).Msg("audio longer than video, trimming")
		args = append(args, "-t", formatSeconds(video))
		adjusted = true
	case delta < -audioTolerance:
		e.logger.Warn().Dur("audio", audio).Dur("video", video).Msg("audio shorter than video, padding")
		args = append(args, "-af", "apad", "-t", formatSeconds(video))
		adjusted = true
	}
	args = append(args, "-movflags", "+faststart", outPath)

	run, err := e.startProcess(ctx, "mux", args, false)
	if err != nil {
		return false, err
	}
	if err := e.waitFinish(ctx, run, "mux", video); err != nil {
		return false, err
	}
	return adjusted, nil
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	ring   *LineRing
	waitCh chan error
}

func (e *Encoder) startProcess(ctx context.Context, stage string, args []string, withStdin bool) (*process, error) {
	cmd := exec.CommandContext(ctx, e.binPath, args...) // #nosec G204
	procgroup.Set(cmd)

	p := &process{cmd: cmd, ring: NewLineRing(stderrLines), waitCh: make(chan error, 1)}
	cmd.Stderr = p.ring

	if withStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		p.stdin = stdin
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	e.logger.Debug().Str("stage", stage).Str("command", cmd.String()).Msg("ffmpeg started")

	go func() { p.waitCh <- cmd.Wait() }()
	return p, nil
}

func (p *process) writeFrame(pixels []byte) error {
	_, err := p.stdin.Write(pixels)
	return err
}

func (p *process) stop(grace time.Duration) error {
	return procgroup.Terminate(p.cmd, p.waitCh, grace)
}

// collectFailure turns a failed stdin write into the process exit
// status, which carries the actual reason.
func (e *Encoder) collectFailure(run *process, stage string, writeErr error) error {
	e.logger.Debug().Err(writeErr).Msg("frame write failed")
	_ = run.stdin.Close()
	err := run.stop(e.grace)
	return &FailedError{Stage: stage, Code: exitCode(err), Stderr: run.ring.LastN(20)}
}

func (e *Encoder) waitFinish(ctx context.Context, run *process, stage string, video time.Duration) error {
	select {
	case err := <-run.waitCh:
		if err == nil {
			return nil
		}
		return &FailedError{Stage: stage, Code: exitCode(err), Stderr: run.ring.LastN(20)}
	case <-time.After(e.finishWait(video)):
		_ = run.stop(e.grace)
		return &FailedError{Stage: stage, TimedOut: true, Stderr: run.ring.LastN(20)}
	case <-ctx.Done():
		_ = run.stop(e.grace)
		return ctx.Err()
	}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// moveFile renames within the data root and falls back to a copy when
// the rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'g', -1, 64)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
