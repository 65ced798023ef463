// SPDX-License-Identifier: MIT

package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/memscreen/memscreen/internal/encoder"
	"github.com/memscreen/memscreen/internal/procgroup"
	"github.com/memscreen/memscreen/internal/types"
)

// extractTimeout bounds one ffmpeg frame-extraction run.
const extractTimeout = 2 * time.Minute

// sample is one selected frame ready for analysis.
type sample struct {
	png     []byte
	tOffset float64
}

// sampleFrames selects representative frames for a recording: every
// FrameStride-th frame plus the first and the last. It prefers the
// keyframe cache the encoder left in the scratch directory; when that
// is gone it decodes the saved video with ffmpeg.
func (p *Pipeline) sampleFrames(ctx context.Context, rec *types.Recording) ([]sample, error) {
	scratch := filepath.Join(p.cfg.ScratchRoot, rec.ID)
	if m, err := encoder.LoadManifest(scratch); err == nil && len(m.Frames) > 0 {
		return p.samplesFromScratch(scratch, m, rec)
	}
	return p.samplesFromVideo(ctx, rec)
}

func (p *Pipeline) samplesFromScratch(scratch string, m *encoder.Manifest, rec *types.Recording) ([]sample, error) {
	var out []sample
	for _, idx := range strideIndices(len(m.Frames), p.cfg.FrameStride) {
		frame := m.Frames[idx]
		png, err := os.ReadFile(filepath.Join(scratch, frame.File))
		if err != nil {
			p.logger.Warn().Err(err).Str("file", frame.File).Msg("cached keyframe unreadable, skipping")
			continue
		}
		out = append(out, sample{
			png:     png,
			tOffset: clampOffset(frame.CapturedAt.Sub(rec.StartTime).Seconds(), rec.DurationSeconds),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("keyframe cache at %s had no readable frames", scratch)
	}
	return out, nil
}

// samplesFromVideo extracts every frame of the saved file into a temp
// directory and selects from those. Offsets are reconstructed from the
// frame index and the recorded fps.
func (p *Pipeline) samplesFromVideo(ctx context.Context, rec *types.Recording) ([]sample, error) {
	if p.cfg.FFmpegBin == "" {
		return nil, fmt.Errorf("no keyframe cache for %s and no ffmpeg to decode the video", rec.ID)
	}
	if rec.FilePath == "" {
		return nil, fmt.Errorf("recording %s has no video file", rec.ID)
	}

	dir, err := os.MkdirTemp("", "memscreen-extract-")
	if err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if err := p.extractFrames(ctx, rec.FilePath, dir); err != nil {
		return nil, err
	}

	names, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil || len(names) == 0 {
		return nil, fmt.Errorf("video %s decoded to no frames", rec.FilePath)
	}
	sort.Strings(names)

	secondsPerFrame := 0.0
	if rec.FPS > 0 {
		secondsPerFrame = 1 / rec.FPS
	}

	var out []sample
	for _, idx := range strideIndices(len(names), p.cfg.FrameStride) {
		png, err := os.ReadFile(names[idx])
		if err != nil {
			continue
		}
		out = append(out, sample{
			png:     png,
			tOffset: clampOffset(float64(idx)*secondsPerFrame, rec.DurationSeconds),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("video %s yielded no readable frames", rec.FilePath)
	}
	return out, nil
}

func (p *Pipeline) extractFrames(ctx context.Context, videoPath, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	// -vsync 0 keeps one output image per decoded frame so indices map
	// onto capture order.
	cmd := exec.CommandContext(ctx, p.cfg.FFmpegBin,
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vsync", "0",
		filepath.Join(dir, "frame_%06d.png"),
	)
	procgroup.Set(cmd)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("extract frames from %s: %w (%s)", videoPath, err, firstLine(out))
	}
	return nil
}

// strideIndices returns 0, stride, 2*stride, ... and always the last
// index. n must be > 0.
func strideIndices(n, stride int) []int {
	var idx []int
	for i := 0; i < n; i += stride {
		idx = append(idx, i)
	}
	if last := n - 1; idx[len(idx)-1] != last {
		idx = append(idx, last)
	}
	return idx
}

func clampOffset(t, max float64) float64 {
	if t < 0 {
		return 0
	}
	if max > 0 && t > max {
		return max
	}
	return t
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
