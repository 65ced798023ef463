// SPDX-License-Identifier: MIT

package encoder

import (
	"strings"
	"sync"
)

// LineRing keeps the last N lines of subprocess output for post-mortem
// logs.
type LineRing struct {
	mu    sync.RWMutex
	lines []string
	head  int
}

// NewLineRing creates a ring holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 64
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer over line-oriented input. Partial lines are
// not reassembled; stderr logs are line-buffered in practice.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		if line == "" {
			continue
		}
		r.lines[r.head] = line
		r.head = (r.head + 1) % len(r.lines)
	}
	return len(p), nil
}

// LastN returns up to n of the most recent lines in chronological order.
func (r *LineRing) LastN(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := make([]string, 0, len(r.lines))
	for i := 0; i < len(r.lines); i++ {
		idx := (r.head + i) % len(r.lines)
		if r.lines[idx] != "" {
			ordered = append(ordered, r.lines[idx])
		}
	}
	if len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
