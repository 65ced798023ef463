// SPDX-License-Identifier: MIT

package runtime

import (
	"errors"
	"fmt"
)

// ErrUnavailable reports a runtime that cannot be reached or stopped
// making progress.
var ErrUnavailable = errors.New("model runtime unavailable")

// StatusError reports a response the runtime answered but refused,
// such as a request for a model that is not installed.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runtime status %d: %s", e.Code, e.Message)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
