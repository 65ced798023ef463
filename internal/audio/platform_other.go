// SPDX-License-Identifier: MIT

//go:build !linux

package audio

import "github.com/rs/zerolog"

func newPlatformBackend(logger zerolog.Logger) Backend {
	return NewUnavailable(logger)
}
