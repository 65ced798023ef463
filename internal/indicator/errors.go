// SPDX-License-Identifier: MIT

package indicator

import "errors"

// ErrUnknownMessage reports a method-channel payload this daemon does
// not understand: an unknown method, malformed JSON, or unexpected
// argument fields.
var ErrUnknownMessage = errors.New("indicator: unknown message")
