// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConfigField classifies YAML keys outside the recognized
	// option set. Unknown keys are warned about, never fatal.
	ErrUnknownConfigField = errors.New("unknown config field")
)

// ValidationError reports one rejected configuration value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}
