// SPDX-License-Identifier: MIT

// Package audio records microphone and system audio into an in-memory WAV
// buffer.
//
// Audio is strictly optional: a Backend never fails construction, Diagnose
// reports what is usable, and Open silently drops unavailable channels,
// downgrading the requested source. A recording therefore never fails just
// because audio is absent.
//
// All captured audio is mono 16-bit PCM at 44.1 kHz. The Linux backend
// speaks the PulseAudio native protocol (pure Go); other platforms compile
// an unavailable stub. A synthetic tone backend serves tests and headless
// runs.
package audio

import (
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/types"
)

// Fixed capture format. The encoder and the WAV container both assume it.
const (
	SampleRate    = 44100
	numChannels   = 1
	bitsPerSample = 16
)

// Backend probes audio availability and opens captures.
type Backend interface {
	// Diagnose reports which capabilities are usable for the requested
	// source, with a human message and a recommended action.
	Diagnose(requested types.AudioSource) Diagnosis

	// Open starts capturing the requested source. Unavailable channels are
	// dropped and the capture's Resolved tag reflects what remains, down to
	// AudioNone. The returned capture is never nil on a nil error.
	Open(requested types.AudioSource) (*Capture, error)
}

// New returns the platform audio backend.
func New(logger zerolog.Logger) Backend {
	return newPlatformBackend(logger)
}

// resolveSource downgrades the requested source to the available channels.
func resolveSource(requested types.AudioSource, micOK, monOK bool) types.AudioSource {
	switch requested {
	case types.AudioMicrophone:
		if micOK {
			return types.AudioMicrophone
		}
	case types.AudioSystem:
		if monOK {
			return types.AudioSystem
		}
	case types.AudioMixed:
		switch {
		case micOK && monOK:
			return types.AudioMixed
		case micOK:
			return types.AudioMicrophone
		case monOK:
			return types.AudioSystem
		}
	}
	return types.AudioNone
}
