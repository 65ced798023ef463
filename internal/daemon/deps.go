// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Deps are the handlers and services the manager runs.
type Deps struct {
	// APIHandler serves the client-facing surface on the API bind.
	APIHandler http.Handler

	// MetricsHandler serves Prometheus scrapes on the metrics bind.
	// Nil disables the metrics listener entirely; metrics are never
	// mounted on the API bind.
	MetricsHandler http.Handler

	Logger zerolog.Logger
}

// Validate checks that the required dependencies are present.
func (d Deps) Validate() error {
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	return nil
}
