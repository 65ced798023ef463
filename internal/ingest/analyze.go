// SPDX-License-Identifier: MIT

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/types"
	"github.com/memscreen/memscreen/internal/vector"
)

// upsertBatchSize caps one vector-store write.
const upsertBatchSize = 64

// visionPrompt asks the vision model for the facts retrieval cares
// about. Kept short; vision models pad long prompts with boilerplate.
const visionPrompt = "Describe this screenshot concisely: the salient entities, " +
	"what the user appears to be doing, and which application is visible."

// frameResult is the per-frame outcome before persistence. Degraded
// frames carry one of the two texts; skipped frames never get this far.
type frameResult struct {
	tOffset  float64
	ocrText  string
	vision   string
	combined string
}

// analyze runs the full pipeline for one recording. Partial failures
// degrade (a frame missing OCR or vision keeps the other); a recording
// with no usable frame at all, or an unreachable store, is marked
// failed. Re-analysis is idempotent: prior artifacts and vectors are
// replaced.
func (p *Pipeline) analyze(ctx context.Context, recordingID string) error {
	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}

	if err := p.setState(ctx, recordingID, types.AnalysisAnalyzing); err != nil {
		return err
	}

	frames, err := p.analyzeFrames(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a bad recording; leave it for the next boot's
			// pending drain.
			return ctx.Err()
		}
		return p.fail(ctx, recordingID, err)
	}

	collection := CollectionName(p.cfg.EmbeddingModel)
	artifacts, err := p.index(ctx, rec, collection, frames)
	if err != nil {
		p.rollback(recordingID, collection)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(ctx, recordingID, err)
	}

	patch := p.derive(ctx, rec, frames)
	done := types.AnalysisDone
	patch.AnalysisState = &done
	if err := p.store.UpdateRecording(ctx, recordingID, patch); err != nil {
		p.rollback(recordingID, collection)
		return fmt.Errorf("finalize analysis: %w", err)
	}

	metrics.AddFramesAnalyzed(len(artifacts))
	return nil
}

// analyzeFrames samples the recording and extracts text per frame.
// Frames where both OCR and vision fail are skipped.
func (p *Pipeline) analyzeFrames(ctx context.Context, rec *types.Recording) ([]frameResult, error) {
	samples, err := p.sampleFrames(ctx, rec)
	if err != nil {
		return nil, err
	}

	var out []frameResult
	var lastVisionErr error
	for _, s := range samples {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ocrText := p.ocr(ctx, s.png)

		vision := ""
		if p.cfg.VisionModel != "" {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			vision, err = p.runtime.DescribeImage(ctx, p.cfg.VisionModel, visionPrompt, s.png)
			if err != nil {
				lastVisionErr = err
				p.logger.Debug().Err(err).Float64("t_offset", s.tOffset).Msg("vision description failed")
				vision = ""
			}
		}

		combined := joinNonEmpty(ocrText, vision)
		if combined == "" {
			continue
		}
		out = append(out, frameResult{
			tOffset:  s.tOffset,
			ocrText:  ocrText,
			vision:   strings.TrimSpace(vision),
			combined: combined,
		})
	}

	if len(out) == 0 {
		if lastVisionErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoUsableFrames, lastVisionErr)
		}
		return nil, ErrNoUsableFrames
	}
	return out, nil
}

// index embeds the combined texts, replaces any prior artifacts for the
// recording, and writes vectors and artifact rows.
func (p *Pipeline) index(ctx context.Context, rec *types.Recording, collection string, frames []frameResult) ([]types.FrameArtifact, error) {
	texts := make([]string, len(frames))
	for i, f := range frames {
		texts[i] = f.combined
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vecs, err := p.runtime.EmbedBatch(ctx, p.cfg.EmbeddingModel, texts)
	if err != nil {
		return nil, fmt.Errorf("embed frames: %w", err)
	}
	if len(vecs) != len(frames) {
		return nil, fmt.Errorf("embed returned %d vectors for %d frames", len(vecs), len(frames))
	}

	if err := p.vectors.EnsureCollection(ctx, collection, len(vecs[0])); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	// Replace-then-write keeps re-analysis idempotent.
	if _, err := p.vectors.DeleteByFilter(ctx, collection, vector.Filter{RecordingID: rec.ID}); err != nil {
		return nil, fmt.Errorf("clear prior vectors: %w", err)
	}
	if _, err := p.store.DeleteFrameArtifacts(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("clear prior artifacts: %w", err)
	}

	now := time.Now().UTC()
	artifacts := make([]types.FrameArtifact, len(frames))
	records := make([]vector.Record, len(frames))
	for i, f := range frames {
		id := uuid.NewString()
		artifacts[i] = types.FrameArtifact{
			ID:                id,
			RecordingID:       rec.ID,
			TOffsetSeconds:    f.tOffset,
			OCRText:           f.ocrText,
			VisionDescription: f.vision,
			EmbeddingRef:      id,
			CreatedAt:         now,
		}
		records[i] = vector.Record{
			ID:     id,
			Vector: vecs[i],
			Metadata: vector.Metadata{
				RecordingID: rec.ID,
				TOffset:     f.tOffset,
				Source:      "combined",
			},
		}
	}

	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		if err := p.vectors.Upsert(ctx, collection, records[start:end]); err != nil {
			return nil, fmt.Errorf("upsert vectors: %w", err)
		}
	}

	if err := p.store.PutFrameArtifacts(ctx, rec.ID, artifacts); err != nil {
		return nil, fmt.Errorf("write frame artifacts: %w", err)
	}
	return artifacts, nil
}

// derive produces the recording-level summary, tags and app name. The
// summary is best-effort: a failing chat model leaves the fields empty
// without failing the analysis.
func (p *Pipeline) derive(ctx context.Context, rec *types.Recording, frames []frameResult) types.RecordingPatch {
	var patch types.RecordingPatch

	if rec.AppName == "" {
		if app := inferAppName(rec.TargetWindowTitle, frames); app != "" {
			patch.AppName = &app
		}
	}

	if p.cfg.ChatModel == "" {
		return patch
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return patch
	}

	summary, tags, err := p.summarize(ctx, frames)
	if err != nil {
		p.logger.Warn().Err(err).Str("recording_id", rec.ID).Msg("summary generation failed")
		return patch
	}
	if summary != "" {
		patch.ContentSummary = &summary
	}
	if len(tags) > 0 {
		patch.ContentTags = &tags
	}
	return patch
}

// summaryPrompt pins the output shape so tags parse reliably.
const summaryPrompt = "Summarize what the user was doing across these screen captures " +
	"in at most two sentences. Then on a final line write `Tags:` followed by " +
	"3-8 comma-separated topical noun phrases."

func (p *Pipeline) summarize(ctx context.Context, frames []frameResult) (string, []string, error) {
	var sb strings.Builder
	for i, f := range frames {
		fmt.Fprintf(&sb, "[t=%.0fs] %s\n", f.tOffset, f.combined)
		// Enough context for a two-sentence summary; avoid blowing the
		// model's window on long recordings.
		if sb.Len() > 8000 {
			p.logger.Debug().Int("frames_used", i+1).Msg("summary context truncated")
			break
		}
	}

	reply, err := p.runtime.Chat(ctx, p.cfg.ChatModel, []runtime.Message{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return "", nil, err
	}

	summary, tags := splitSummaryAndTags(reply)
	return summary, NormalizeTags(tags), nil
}

// fail marks the recording failed, preserving the original error for
// the caller's log line.
func (p *Pipeline) fail(ctx context.Context, recordingID string, cause error) error {
	if err := p.setState(ctx, recordingID, types.AnalysisFailed); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Pipeline) setState(ctx context.Context, recordingID string, state types.AnalysisState) error {
	if err := p.store.UpdateRecording(ctx, recordingID, types.RecordingPatch{AnalysisState: &state}); err != nil {
		return fmt.Errorf("set analysis state %s: %w", state, err)
	}
	return nil
}

// rollback removes whatever this attempt may have written. It runs on a
// fresh context because the task's own context may already be cancelled.
func (p *Pipeline) rollback(recordingID, collection string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.vectors.DeleteByFilter(ctx, collection, vector.Filter{RecordingID: recordingID}); err != nil {
		p.logger.Error().Err(err).Str("recording_id", recordingID).Msg("vector rollback failed")
	}
	if _, err := p.store.DeleteFrameArtifacts(ctx, recordingID); err != nil {
		p.logger.Error().Err(err).Str("recording_id", recordingID).Msg("artifact rollback failed")
	}
}

// CollectionName is the vector collection for one embedding model.
func CollectionName(embeddingModel string) string {
	return "emb:" + embeddingModel
}

func joinNonEmpty(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}

// splitSummaryAndTags separates the model reply into prose and the
// trailing tag line.
func splitSummaryAndTags(reply string) (string, []string) {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	var prose []string
	var tags []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "`"))
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "tags:") {
			for _, t := range strings.Split(trimmed[len("tags:"):], ",") {
				tags = append(tags, t)
			}
			continue
		}
		if trimmed != "" {
			prose = append(prose, trimmed)
		}
	}
	return strings.Join(prose, " "), tags
}

// inferAppName guesses the foreground application. Window titles
// conventionally end in "- AppName"; OCR text is too noisy to beat
// that, so it is only consulted when there is no title at all.
func inferAppName(windowTitle string, frames []frameResult) string {
	if windowTitle != "" {
		parts := strings.Split(windowTitle, " - ")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	for _, f := range frames {
		if f.vision == "" {
			continue
		}
		// First sentence of the first vision description mentions the
		// application per the prompt; keep it short.
		if i := strings.IndexAny(f.vision, ".\n"); i > 0 && i <= 80 {
			return strings.TrimSpace(f.vision[:i])
		}
		break
	}
	return ""
}
