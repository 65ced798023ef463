// SPDX-License-Identifier: MIT

package audio

import (
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/types"
)

// NewUnavailable returns a backend with no audio capability. Non-Linux
// builds use it as the platform backend; captures opened through it are
// inert.
func NewUnavailable(logger zerolog.Logger) Backend {
	return &unavailableBackend{logger: logger}
}

type unavailableBackend struct {
	logger zerolog.Logger
}

var _ Backend = (*unavailableBackend)(nil)

func (b *unavailableBackend) Diagnose(requested types.AudioSource) Diagnosis {
	var d Diagnosis
	d.summarize(requested)
	return d
}

func (b *unavailableBackend) Open(requested types.AudioSource) (*Capture, error) {
	if requested != types.AudioNone {
		b.logger.Warn().
			Str("requested", requested.String()).
			Msg("audio capture unavailable on this platform; recording without audio")
	}
	return newInertCapture(b.logger), nil
}
