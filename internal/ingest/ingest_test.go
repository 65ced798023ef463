// SPDX-License-Identifier: MIT

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreen/internal/encoder"
	"github.com/memscreen/memscreen/internal/fsutil"
	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
	"github.com/memscreen/memscreen/internal/vector"
)

// fakeRuntime scripts the three model calls the pipeline makes.
type fakeRuntime struct {
	mu          sync.Mutex
	describeErr error
	embedErr    error
	chatReply   string
	chatErr     error
	describes   int
	embeds      int
}

func (f *fakeRuntime) DescribeImage(_ context.Context, _, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describes++
	if f.describeErr != nil {
		return "", f.describeErr
	}
	return fmt.Sprintf("editor window, frame %d", f.describes), nil
}

func (f *fakeRuntime) EmbedBatch(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embeds++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

func (f *fakeRuntime) Chat(_ context.Context, _ string, _ []runtime.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if f.chatReply != "" {
		return f.chatReply, nil
	}
	return "The user edited Go code in an IDE.\nTags: Go, code editing, IDE", nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// writeScratch fakes the encoder's keyframe cache for a recording.
func writeScratch(t *testing.T, root, recID string, start time.Time, n int) {
	t.Helper()
	dir := filepath.Join(root, recID)
	require.NoError(t, os.MkdirAll(dir, 0o700))

	data := testPNG(t)
	m := encoder.Manifest{Width: 4, Height: 4}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("frame_%06d.png", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
		m.Frames = append(m.Frames, encoder.ManifestFrame{
			File:       name,
			CapturedAt: start.Add(time.Duration(i) * time.Second),
		})
	}
	require.NoError(t, fsutil.WriteJSONAtomic(filepath.Join(dir, encoder.ManifestName), m))
}

func newTestPipeline(t *testing.T, rt Runtime) (*Pipeline, *store.Store, *vector.Store, string) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	vs, err := vector.Open(filepath.Join(dir, "vectors"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	scratch := filepath.Join(dir, "tmp")
	p := New(Config{
		VisionModel:    "llava",
		EmbeddingModel: "nomic-embed-text",
		ChatModel:      "llama3.2",
		FrameStride:    2,
		Workers:        1,
		ScratchRoot:    scratch,
		RuntimeRate:    1000,
	}, Deps{Store: st, Vectors: vs, Runtime: rt})
	return p, st, vs, scratch
}

func seedRecording(t *testing.T, st *store.Store, scratch string, frames int) *types.Recording {
	t.Helper()
	start := time.Now().UTC().Add(-time.Minute)
	rec := &types.Recording{
		StartTime:       start,
		EndTime:         start.Add(time.Duration(frames) * time.Second),
		FrameCount:      frames,
		FPS:             1,
		DurationSeconds: float64(frames),
		FilePath:        "/nonexistent/video.mp4",
		AudioSource:     types.AudioNone,
		Mode:            types.ModeFullscreen,
		AnalysisState:   types.AnalysisPending,
	}
	id, err := st.PutRecording(context.Background(), rec)
	require.NoError(t, err)
	rec.ID = id
	writeScratch(t, scratch, id, start, frames)
	return rec
}

func TestAnalyzeWritesArtifactsAndVectors(t *testing.T) {
	rt := &fakeRuntime{}
	p, st, vs, scratch := newTestPipeline(t, rt)
	rec := seedRecording(t, st, scratch, 5)

	require.NoError(t, p.analyze(context.Background(), rec.ID))

	got, err := st.GetRecording(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, types.AnalysisDone, got.AnalysisState)
	require.Equal(t, "The user edited Go code in an IDE.", got.ContentSummary)
	require.Equal(t, []string{"go", "code editing", "ide"}, got.ContentTags)

	// Stride 2 over 5 frames selects 0, 2, 4.
	arts, err := st.ListFrameArtifacts(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, arts, 3)
	require.Equal(t, 0.0, arts[0].TOffsetSeconds)
	require.Equal(t, 4.0, arts[2].TOffsetSeconds)

	for _, a := range arts {
		require.Equal(t, a.ID, a.EmbeddingRef)
		hits, err := vs.Query(context.Background(), CollectionName("nomic-embed-text"),
			[]float32{10, 1, 0}, 10, vector.Filter{RecordingID: rec.ID})
		require.NoError(t, err)
		require.Len(t, hits, 3)
	}
}

func TestAnalyzeDegradesToOCROnlyNever(t *testing.T) {
	// No tesseract and a broken vision model: nothing usable remains.
	rt := &fakeRuntime{describeErr: errors.New("model not installed")}
	p, st, _, scratch := newTestPipeline(t, rt)
	rec := seedRecording(t, st, scratch, 3)

	err := p.analyze(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrNoUsableFrames)

	got, err := st.GetRecording(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, types.AnalysisFailed, got.AnalysisState)
}

func TestAnalyzeEmbedFailureMarksFailed(t *testing.T) {
	rt := &fakeRuntime{embedErr: errors.New("runtime down")}
	p, st, _, scratch := newTestPipeline(t, rt)
	rec := seedRecording(t, st, scratch, 3)

	require.Error(t, p.analyze(context.Background(), rec.ID))

	got, err := st.GetRecording(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, types.AnalysisFailed, got.AnalysisState)

	arts, err := st.ListFrameArtifacts(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Empty(t, arts)
}

func TestAnalyzeSummaryFailureStillCompletes(t *testing.T) {
	rt := &fakeRuntime{chatErr: errors.New("chat model missing")}
	p, st, _, scratch := newTestPipeline(t, rt)
	rec := seedRecording(t, st, scratch, 3)

	require.NoError(t, p.analyze(context.Background(), rec.ID))

	got, err := st.GetRecording(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, types.AnalysisDone, got.AnalysisState)
	require.Empty(t, got.ContentSummary)
}

func TestReanalysisReplacesArtifacts(t *testing.T) {
	rt := &fakeRuntime{}
	p, st, vs, scratch := newTestPipeline(t, rt)
	rec := seedRecording(t, st, scratch, 4)

	require.NoError(t, p.analyze(context.Background(), rec.ID))
	first, err := st.ListFrameArtifacts(context.Background(), rec.ID)
	require.NoError(t, err)

	require.NoError(t, p.analyze(context.Background(), rec.ID))
	second, err := st.ListFrameArtifacts(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	require.NotEqual(t, first[0].ID, second[0].ID)

	// The first run's vectors are gone.
	hits, err := vs.Query(context.Background(), CollectionName("nomic-embed-text"),
		[]float32{10, 1, 0}, 100, vector.Filter{RecordingID: rec.ID})
	require.NoError(t, err)
	require.Len(t, hits, len(second))
}

func TestRunDrainsQueue(t *testing.T) {
	rt := &fakeRuntime{}
	p, st, _, scratch := newTestPipeline(t, rt)
	rec := seedRecording(t, st, scratch, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Enqueue(rec.ID)
	require.Eventually(t, func() bool {
		got, err := st.GetRecording(context.Background(), rec.ID)
		return err == nil && got.AnalysisState == types.AnalysisDone
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.ErrorIs(t, p.TryEnqueue(rec.ID), ErrClosed)
}

func TestEnqueuePendingPicksUpSavedRecordings(t *testing.T) {
	rt := &fakeRuntime{}
	p, st, _, scratch := newTestPipeline(t, rt)

	withFile := seedRecording(t, st, scratch, 2)

	// A pending row with no file (crashed mid-recording) is skipped.
	noFile := &types.Recording{
		StartTime:     time.Now().UTC(),
		EndTime:       time.Now().UTC(),
		AudioSource:   types.AudioNone,
		Mode:          types.ModeFullscreen,
		AnalysisState: types.AnalysisPending,
	}
	_, err := st.PutRecording(context.Background(), noFile)
	require.NoError(t, err)

	queued, err := p.EnqueuePending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, queued)

	// The queued id is the one with the file.
	select {
	case id := <-p.queue:
		require.Equal(t, withFile.ID, id)
	default:
		t.Fatal("expected one queued recording")
	}
}

func TestTryEnqueueDeduplicates(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, &fakeRuntime{})
	require.NoError(t, p.TryEnqueue("rec-1"))
	require.NoError(t, p.TryEnqueue("rec-1"))
	require.Len(t, p.queue, 1)
}

func TestStrideIndices(t *testing.T) {
	require.Equal(t, []int{0}, strideIndices(1, 15))
	require.Equal(t, []int{0, 4}, strideIndices(5, 15))
	require.Equal(t, []int{0, 2, 4}, strideIndices(5, 2))
	require.Equal(t, []int{0, 3, 5}, strideIndices(6, 3))
	require.Equal(t, []int{0, 1, 2, 3}, strideIndices(4, 1))
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Go ", "go", "IDE.", "", "Code Editing"})
	require.Equal(t, []string{"go", "ide", "code editing"}, got)
}

func TestSplitSummaryAndTags(t *testing.T) {
	summary, tags := splitSummaryAndTags("Editing code.\nMore detail here.\nTags: a, B, c")
	require.Equal(t, "Editing code. More detail here.", summary)
	require.Equal(t, []string{" a", " B", " c"}, tags)

	summary, tags = splitSummaryAndTags("No tags in this reply.")
	require.Equal(t, "No tags in this reply.", summary)
	require.Empty(t, tags)
}
