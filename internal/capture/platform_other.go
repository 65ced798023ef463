// SPDX-License-Identifier: MIT

//go:build !linux || !cgo

package capture

import (
	"fmt"

	"github.com/rs/zerolog"
)

// newPlatformBackend reports that native capture is not built for this
// platform. The synthetic backend stays available via capture_backend.
func newPlatformBackend(zerolog.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w on this platform; set capture_backend=synthetic", ErrBackendUnavailable)
}
