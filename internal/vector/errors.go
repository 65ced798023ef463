// SPDX-License-Identifier: MIT

package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a collection does not exist.
	ErrNotFound = errors.New("vector: collection not found")

	// ErrDimensionMismatch is returned when a vector's dimension does
	// not match its collection.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")

	// ErrUnavailable is returned when the backend cannot be opened or
	// keeps failing after retries.
	ErrUnavailable = errors.New("vector: storage unavailable")
)

// DimensionError reports the offending dimensions.
type DimensionError struct {
	Collection string
	Want       int
	Got        int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector: collection %q expects dimension %d, got %d", e.Collection, e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }
