// SPDX-License-Identifier: MIT

package audio

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/types"
)

// Synthetic generates sine tones instead of recording real devices, so the
// full audio path stays testable on headless hosts.
type Synthetic struct {
	logger zerolog.Logger
}

var _ Backend = (*Synthetic)(nil)

func NewSynthetic() *Synthetic {
	return &Synthetic{logger: zerolog.Nop()}
}

func (b *Synthetic) Diagnose(requested types.AudioSource) Diagnosis {
	d := Diagnosis{
		BackendAvailable:      true,
		MicrophoneAvailable:   true,
		SystemDeviceAvailable: true,
		SystemSignalAvailable: true,
	}
	d.summarize(requested)
	return d
}

func (b *Synthetic) Open(requested types.AudioSource) (*Capture, error) {
	if requested == types.AudioNone {
		return newInertCapture(b.logger), nil
	}
	var mic, mon sampleReader
	if requested.WantsMicrophone() {
		mic = newToneReader(440)
	}
	if requested.WantsSystem() {
		mon = newToneReader(330)
	}
	return newCapture(requested, mic, mon, nil, b.logger), nil
}

// toneReader synthesizes a continuous sine tone, producing samples for the
// wall time elapsed since the previous drain.
type toneReader struct {
	mu    sync.Mutex
	freq  float64
	phase int
	last  time.Time
}

func newToneReader(freq float64) *toneReader {
	return &toneReader{freq: freq, last: time.Now()}
}

func (r *toneReader) drainAll() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int(time.Since(r.last).Seconds() * SampleRate)
	if n <= 0 {
		return nil
	}
	if n > SampleRate {
		n = SampleRate
	}
	r.last = r.last.Add(time.Duration(n) * time.Second / SampleRate)
	if time.Since(r.last) > time.Second {
		// Drop backlog after a long stall instead of bursting it out.
		r.last = time.Now()
	}

	out := make([]int16, n)
	for i := range out {
		angle := 2 * math.Pi * r.freq * float64(r.phase+i) / SampleRate
		out[i] = int16(0.2 * 32767 * math.Sin(angle))
	}
	r.phase += n
	return out
}
