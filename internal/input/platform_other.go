// SPDX-License-Identifier: MIT

//go:build !linux || !cgo

package input

import (
	"fmt"

	"github.com/rs/zerolog"
)

// unavailableSource is the event tap on platforms without one. Tracking
// cannot start, while client-supplied sessions keep working.
type unavailableSource struct{}

var _ Source = unavailableSource{}

func newPlatformSource(zerolog.Logger) Source {
	return unavailableSource{}
}

func (unavailableSource) Start(Emit) error {
	return fmt.Errorf("%w on this platform", ErrSourceUnavailable)
}

func (unavailableSource) Stop() {}
