// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, b Backend, target Target, interval time.Duration) FrameStream {
	t.Helper()
	stream, err := b.Open(target, interval)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })
	return stream
}

func nextFrame(t *testing.T, stream FrameStream) *Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := stream.Next(ctx)
	require.NoError(t, err)
	return frame
}

func TestSyntheticListDisplays(t *testing.T) {
	b := NewSynthetic(1280, 800)
	displays, err := b.ListDisplays()
	require.NoError(t, err)
	require.Len(t, displays, 1)
	assert.Equal(t, "synthetic-0", displays[0].DisplayID)
	assert.Equal(t, 1280, displays[0].Width)
	assert.Equal(t, 800, displays[0].Height)
	assert.True(t, displays[0].IsPrimary)
}

func TestSyntheticListWindows(t *testing.T) {
	b := NewSynthetic(1280, 800)
	windows, err := b.ListWindows()
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, "Synthetic Terminal", windows[0].Title)
	assert.Equal(t, 640, windows[0].Bounds.Width)
}

func TestOpenFullScreenProducesFrames(t *testing.T) {
	b := NewSynthetic(320, 200)
	stream := openStream(t, b, FullScreen(), 5*time.Millisecond)

	w, h := stream.Size()
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)

	first := nextFrame(t, stream)
	assert.Equal(t, 320, first.Width)
	assert.Equal(t, 200, first.Height)
	assert.Len(t, first.Pixels, 320*200*4)
	assert.EqualValues(t, 0xFF, first.Pixels[3], "alpha must be opaque")
	assert.False(t, first.CapturedAt.IsZero())

	second := nextFrame(t, stream)
	assert.False(t, second.CapturedAt.Before(first.CapturedAt), "timestamps must not go backwards")
}

func TestNextTimeout(t *testing.T) {
	b := NewSynthetic(64, 64)
	stream := openStream(t, b, FullScreen(), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := stream.Next(ctx)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestNextCancellation(t *testing.T) {
	b := NewSynthetic(64, 64)
	stream := openStream(t, b, FullScreen(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := stream.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestSlowConsumerGetsRecentFrames(t *testing.T) {
	b := NewSynthetic(16, 16)
	stream := openStream(t, b, FullScreen(), 2*time.Millisecond)

	// Let the producer run well past the buffer size without consuming.
	time.Sleep(100 * time.Millisecond)

	frame := nextFrame(t, stream)
	counter := frame.Pixels[2] // blue channel carries the frame counter
	assert.Greater(t, counter, byte(streamBuffer), "oldest frames should have been dropped")
}

func TestRegionTarget(t *testing.T) {
	b := NewSynthetic(1280, 800)
	stream := openStream(t, b, RegionOn("synthetic-0", Rect{X: 10, Y: 10, Width: 64, Height: 48}), 5*time.Millisecond)

	w, h := stream.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)

	frame := nextFrame(t, stream)
	assert.Len(t, frame.Pixels, 64*48*4)
}

func TestRegionClampedToDisplay(t *testing.T) {
	b := NewSynthetic(1280, 800)
	stream := openStream(t, b, RegionOn("", Rect{X: 1200, Y: 700, Width: 500, Height: 500}), 5*time.Millisecond)

	w, h := stream.Size()
	assert.Equal(t, 80, w)
	assert.Equal(t, 100, h)
}

func TestRegionInvalid(t *testing.T) {
	b := NewSynthetic(1280, 800)
	_, err := b.Open(RegionOn("synthetic-0", Rect{Width: 0, Height: 100}), 5*time.Millisecond)
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestOpenUnknownDisplay(t *testing.T) {
	b := NewSynthetic(1280, 800)
	_, err := b.Open(DisplayByID("DP-9"), 5*time.Millisecond)
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestOpenUnknownWindow(t *testing.T) {
	b := NewSynthetic(1280, 800)
	_, err := b.Open(WindowByTitle("does not exist"), 5*time.Millisecond)
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestWindowTargetResolvesBounds(t *testing.T) {
	b := NewSynthetic(1280, 800)
	stream := openStream(t, b, WindowByTitle("Synthetic Terminal"), 5*time.Millisecond)

	w, h := stream.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 400, h)
}

func TestWindowSubstringMatch(t *testing.T) {
	b := NewSynthetic(1280, 800)
	stream := openStream(t, b, WindowByTitle("editor"), 5*time.Millisecond)

	w, h := stream.Size()
	assert.Equal(t, 1280/3, w)
	assert.Equal(t, 800/3, h)
}

func TestWindowGoneClosesStream(t *testing.T) {
	b := NewSynthetic(1280, 800)
	stream := openStream(t, b, WindowByTitle("Synthetic Editor"), 2*time.Millisecond)

	nextFrame(t, stream)
	b.RemoveWindow("Synthetic Editor")

	deadline := time.Now().Add(5 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "stream never reported the vanished window")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := stream.Next(ctx)
		cancel()
		if err == nil {
			continue // buffered frames drain first
		}

		var closedErr *ClosedError
		require.ErrorAs(t, err, &closedErr)
		assert.Equal(t, ReasonTargetGone, closedErr.Reason)
		assert.ErrorIs(t, err, ErrStreamClosed)
		return
	}
}

func TestCloseUnblocksNext(t *testing.T) {
	b := NewSynthetic(64, 64)
	stream := openStream(t, b, FullScreen(), time.Hour)

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stream.Close())

	select {
	case err := <-errCh:
		var closedErr *ClosedError
		require.ErrorAs(t, err, &closedErr)
		assert.Equal(t, ReasonClosed, closedErr.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	b := NewSynthetic(64, 64)
	stream, err := b.Open(FullScreen(), 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func TestNewSelectsBackend(t *testing.T) {
	b, err := New("synthetic", zerolog.Nop())
	require.NoError(t, err)
	_, ok := b.(*Synthetic)
	assert.True(t, ok)

	_, err = New("quartz", zerolog.Nop())
	require.Error(t, err)
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "full screen", FullScreen().String())
	assert.Equal(t, "display eDP-1", DisplayByID("eDP-1").String())
	assert.Equal(t, `window "Firefox"`, WindowByTitle("Firefox").String())
	assert.Equal(t, "region 64x48+10+20 on eDP-1", RegionOn("eDP-1", Rect{X: 10, Y: 20, Width: 64, Height: 48}).String())
}

func TestClampRegion(t *testing.T) {
	got, err := clampRegion(Rect{X: -10, Y: -10, Width: 100, Height: 100}, 1280, 800)
	require.NoError(t, err)
	assert.Equal(t, Rect{X: 0, Y: 0, Width: 90, Height: 90}, got)

	_, err = clampRegion(Rect{X: 2000, Y: 0, Width: 100, Height: 100}, 1280, 800)
	require.ErrorIs(t, err, ErrInvalidTarget)
}
