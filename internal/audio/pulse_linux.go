// SPDX-License-Identifier: MIT

//go:build linux

package audio

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/types"
)

const (
	appName = "memscreen"

	// fragmentBytes asks PulseAudio for roughly 50ms deliveries of mono
	// S16LE at the fixed rate.
	fragmentBytes = SampleRate / 20 * 2

	// signalProbeWindow is how long Diagnose listens to the sink monitor
	// before deciding whether it carries a signal.
	signalProbeWindow = 150 * time.Millisecond
)

func newPlatformBackend(logger zerolog.Logger) Backend {
	return &pulseBackend{logger: logger}
}

// pulseBackend records through the PulseAudio native protocol. Microphone
// is the default source, system audio the monitor of the default sink.
type pulseBackend struct {
	logger zerolog.Logger
}

var _ Backend = (*pulseBackend)(nil)

func (b *pulseBackend) Diagnose(requested types.AudioSource) Diagnosis {
	var d Diagnosis
	client, err := pulse.NewClient(pulse.ClientApplicationName(appName))
	if err != nil {
		d.summarize(requested)
		return d
	}
	defer client.Close()
	d.BackendAvailable = true

	if _, err := client.DefaultSource(); err == nil {
		d.MicrophoneAvailable = true
	}
	if sink, err := client.DefaultSink(); err == nil {
		d.SystemDeviceAvailable = true
		d.SystemSignalAvailable = b.probeMonitorSignal(client, sink)
	}

	d.summarize(requested)
	return d
}

// probeMonitorSignal records the sink monitor briefly and reports whether
// any non-silent samples arrived.
func (b *pulseBackend) probeMonitorSignal(client *pulse.Client, sink *pulse.Sink) bool {
	col := &collector{}
	stream, err := client.NewRecord(col,
		pulse.RecordMonitor(sink),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
	)
	if err != nil {
		return false
	}
	stream.Start()
	time.Sleep(signalProbeWindow)
	stream.Stop()

	for _, s := range col.drainAll() {
		if s != 0 {
			return true
		}
	}
	return false
}

func (b *pulseBackend) Open(requested types.AudioSource) (*Capture, error) {
	if requested == types.AudioNone {
		return newInertCapture(b.logger), nil
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName(appName))
	if err != nil {
		b.logger.Warn().Err(err).Msg("audio backend unreachable; recording without audio")
		return newInertCapture(b.logger), nil
	}

	var (
		micCol, monCol *collector
		streams        []*pulse.RecordStream
	)

	if requested.WantsMicrophone() {
		src, err := client.DefaultSource()
		if err != nil {
			b.logger.Warn().Err(err).Msg("no default microphone; dropping channel")
		} else {
			col := &collector{}
			stream, err := client.NewRecord(col,
				pulse.RecordSource(src),
				pulse.RecordMono,
				pulse.RecordSampleRate(SampleRate),
				pulse.RecordBufferFragmentSize(fragmentBytes),
			)
			if err != nil {
				b.logger.Warn().Err(err).Msg("microphone record stream failed; dropping channel")
			} else {
				micCol = col
				streams = append(streams, stream)
			}
		}
	}

	if requested.WantsSystem() {
		sink, err := client.DefaultSink()
		if err != nil {
			b.logger.Warn().Err(err).Msg("no default sink; dropping system audio channel")
		} else {
			col := &collector{}
			stream, err := client.NewRecord(col,
				pulse.RecordMonitor(sink),
				pulse.RecordMono,
				pulse.RecordSampleRate(SampleRate),
				pulse.RecordBufferFragmentSize(fragmentBytes),
			)
			if err != nil {
				b.logger.Warn().Err(err).Msg("system audio record stream failed; dropping channel")
			} else {
				monCol = col
				streams = append(streams, stream)
			}
		}
	}

	resolved := resolveSource(requested, micCol != nil, monCol != nil)
	if resolved == types.AudioNone {
		client.Close()
		return newInertCapture(b.logger), nil
	}
	if resolved != requested {
		b.logger.Info().
			Str("requested", requested.String()).
			Str("resolved", resolved.String()).
			Msg("audio source downgraded")
	}

	for _, s := range streams {
		s.Start()
	}
	stop := func() {
		for _, s := range streams {
			s.Stop()
		}
		client.Close()
	}

	var mic, mon sampleReader
	if micCol != nil {
		mic = micCol
	}
	if monCol != nil {
		mon = monCol
	}
	return newCapture(resolved, mic, mon, stop, b.logger), nil
}

// collector implements pulse.Writer, converting the delivered S16LE byte
// stream into samples.
type collector struct {
	mu  sync.Mutex
	buf []int16
}

func (c *collector) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(data) / 2
	for i := 0; i < n; i++ {
		c.buf = append(c.buf, int16(binary.LittleEndian.Uint16(data[i*2:i*2+2])))
	}
	return len(data), nil
}

func (c *collector) Format() byte { return proto.FormatInt16LE }

func (c *collector) drainAll() []int16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.buf
	c.buf = nil
	return out
}
