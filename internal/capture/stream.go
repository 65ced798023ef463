// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/metrics"
)

// errTargetGone is returned by a grabber when its display or window
// vanished. The stream turns it into a ClosedError with ReasonTargetGone.
var errTargetGone = errors.New("capture target gone")

// grabber produces one frame per call for an open target. Implementations
// are called from a single goroutine.
type grabber interface {
	grab() (*Frame, error)
	close() error
}

// streamBuffer is how many undelivered frames a stream holds before it
// starts dropping the oldest.
const streamBuffer = 4

type stream struct {
	width    int
	height   int
	interval time.Duration
	source   grabber
	mode     string
	logger   zerolog.Logger

	frames chan *Frame
	stop   chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	reason string

	closeOnce sync.Once
	closeErr  error
}

var _ FrameStream = (*stream)(nil)

func newStream(source grabber, width, height int, interval time.Duration, mode string, logger zerolog.Logger) *stream {
	s := &stream{
		width:    width,
		height:   height,
		interval: interval,
		source:   source,
		mode:     mode,
		logger:   logger,
		frames:   make(chan *Frame, streamBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *stream) Size() (int, int) { return s.width, s.height }

// pump grabs frames at the configured interval until stopped or the target
// vanishes. It is the only writer and the only closer of s.frames, so
// consumers drain buffered frames before seeing the close.
func (s *stream) pump() {
	defer close(s.done)
	defer close(s.frames)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.setReason(ReasonClosed)
			return
		case <-ticker.C:
			frame, err := s.source.grab()
			if err != nil {
				if errors.Is(err, errTargetGone) {
					s.setReason(ReasonTargetGone)
					s.logger.Warn().Msg("capture target disappeared")
					return
				}
				s.logger.Warn().Err(err).Msg("frame grab failed")
				continue
			}
			frame.CapturedAt = time.Now()
			metrics.IncFrameCaptured(s.mode)

			select {
			case s.frames <- frame:
			default:
				// Buffer full. Evict the oldest undelivered frame; with a
				// single producer the followup send cannot block.
				select {
				case <-s.frames:
					metrics.AddFramesDropped("capture", 1)
				default:
				}
				s.frames <- frame
			}
		}
	}
}

func (s *stream) Next(ctx context.Context) (*Frame, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, s.closedErr()
		}
		return frame, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.closeErr = s.source.close()
	})
	return s.closeErr
}

func (s *stream) setReason(reason string) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
}

func (s *stream) closedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := s.reason
	if reason == "" {
		reason = ReasonClosed
	}
	return &ClosedError{Reason: reason}
}
