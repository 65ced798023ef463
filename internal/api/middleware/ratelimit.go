// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns a sliding-window limiter keyed by client IP. The
// daemon binds to localhost, so the limiter mainly protects against a
// runaway local client hammering mutation routes.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"too many requests, slow down"}`))
		}),
	)
}

// MutationRateLimit covers state-changing routes: generous enough for
// an interactive client, tight enough to stop a retry loop.
func MutationRateLimit() func(http.Handler) http.Handler {
	return RateLimit(120, time.Minute)
}
