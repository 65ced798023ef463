// SPDX-License-Identifier: MIT

package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/types"
)

const (
	// flushInterval is how often buffered PCM moves from the platform
	// collectors into the WAV buffer.
	flushInterval = 50 * time.Millisecond

	// maxCarry bounds how far one mixed channel may run ahead of the other
	// before the stalled side is treated as silence.
	maxCarry = SampleRate
)

// sampleReader drains buffered PCM from one platform channel.
type sampleReader interface {
	drainAll() []int16
}

// Capture is one running audio recording. It owns a flush goroutine that
// moves PCM from the platform channels into the WAV buffer and keeps a
// level meter current.
type Capture struct {
	resolved    types.AudioSource
	buf         *Buffer
	mic         sampleReader
	mon         sampleReader
	mix         mixer
	stopStreams func()
	logger      zerolog.Logger

	level    atomic.Uint64 // math.Float64bits of the last chunk's RMS
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// newCapture starts the flush loop. A resolved source of AudioNone yields
// an inert capture whose WAV stays empty.
func newCapture(resolved types.AudioSource, mic, mon sampleReader, stopStreams func(), logger zerolog.Logger) *Capture {
	c := &Capture{
		resolved:    resolved,
		buf:         NewBuffer(),
		mic:         mic,
		mon:         mon,
		stopStreams: stopStreams,
		logger:      logger,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	if resolved == types.AudioNone {
		close(c.done)
		return c
	}
	go c.run()
	return c
}

func newInertCapture(logger zerolog.Logger) *Capture {
	return newCapture(types.AudioNone, nil, nil, nil, logger)
}

// Resolved reports which channels this capture actually records.
func (c *Capture) Resolved() types.AudioSource {
	return c.resolved
}

// Level returns the RMS level of the most recent audio chunk in [0, 1].
func (c *Capture) Level() float64 {
	return math.Float64frombits(c.level.Load())
}

// Duration returns the length of audio captured so far.
func (c *Capture) Duration() time.Duration {
	return c.buf.Duration()
}

// WAV returns the captured audio as a complete WAV file, or nil when
// nothing was recorded.
func (c *Capture) WAV() []byte {
	if c.resolved == types.AudioNone || c.buf.SampleCount() == 0 {
		return nil
	}
	return c.buf.Bytes()
}

// Stop ends the capture, releases the platform streams and performs a final
// flush. Safe to call more than once.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		if c.stopStreams != nil {
			c.stopStreams()
		}
		close(c.stopCh)
		<-c.done
	})
}

func (c *Capture) run() {
	defer close(c.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Capture) flush() {
	var chunk []int16
	switch {
	case c.mic != nil && c.mon != nil:
		chunk = c.mix.mix(c.mic.drainAll(), c.mon.drainAll())
	case c.mic != nil:
		chunk = c.mic.drainAll()
	case c.mon != nil:
		chunk = c.mon.drainAll()
	}
	if len(chunk) == 0 {
		return
	}
	c.buf.AppendSamples(chunk)
	c.level.Store(math.Float64bits(rms(chunk)))
}

// rms computes the root mean square of a chunk, normalized to [0, 1].
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768
}

// mixer averages two mono channels that may deliver at slightly different
// paces. Per-side carries absorb the skew.
type mixer struct {
	micCarry []int16
	monCarry []int16
}

func (m *mixer) mix(mic, mon []int16) []int16 {
	m.micCarry = append(m.micCarry, mic...)
	m.monCarry = append(m.monCarry, mon...)

	n := len(m.micCarry)
	if len(m.monCarry) < n {
		n = len(m.monCarry)
	}

	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16((int32(m.micCarry[i]) + int32(m.monCarry[i])) / 2)
	}
	m.micCarry = shiftSamples(m.micCarry, n)
	m.monCarry = shiftSamples(m.monCarry, n)

	// A side running ahead by over maxCarry means the other side stalled;
	// flush the excess against silence so audio keeps flowing.
	out = append(out, flushStalled(&m.micCarry)...)
	out = append(out, flushStalled(&m.monCarry)...)
	return out
}

func flushStalled(carry *[]int16) []int16 {
	excess := len(*carry) - maxCarry
	if excess <= 0 {
		return nil
	}
	out := make([]int16, excess)
	for i := 0; i < excess; i++ {
		out[i] = (*carry)[i] / 2
	}
	*carry = shiftSamples(*carry, excess)
	return out
}

func shiftSamples(buf []int16, n int) []int16 {
	copy(buf, buf[n:])
	return buf[:len(buf)-n]
}
