// SPDX-License-Identifier: MIT

package audio

import (
	"encoding/binary"
	"sync"
	"time"
)

const wavHeaderSize = 44

// Buffer accumulates mono S16LE samples and renders them as a complete
// RIFF/WAVE file.
type Buffer struct {
	mu      sync.Mutex
	samples []int16
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) AppendSamples(s []int16) {
	if len(s) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, s...)
	b.mu.Unlock()
}

// SampleCount returns the number of buffered samples.
func (b *Buffer) SampleCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns the buffered audio length at the fixed sample rate.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.SampleCount()) * time.Second / SampleRate
}

// Bytes renders the buffer as a WAV file: a 44-byte PCM header followed by
// the little-endian samples.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	dataLen := len(b.samples) * 2
	out := make([]byte, wavHeaderSize+dataLen)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], numChannels)
	binary.LittleEndian.PutUint32(out[24:28], SampleRate)
	binary.LittleEndian.PutUint32(out[28:32], SampleRate*numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(out[32:34], numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))
	for i, s := range b.samples {
		binary.LittleEndian.PutUint16(out[wavHeaderSize+i*2:], uint16(s))
	}
	return out
}
