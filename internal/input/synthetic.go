// SPDX-License-Identifier: MIT

package input

import (
	"sync"

	"github.com/memscreen/memscreen/internal/types"
)

// SyntheticSource is a scriptable event tap for tests and headless runs.
type SyntheticSource struct {
	mu   sync.Mutex
	emit Emit
}

var _ Source = (*SyntheticSource)(nil)

// NewSyntheticSource returns an idle source; events flow only between
// Start and Stop.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{}
}

// Start implements Source.
func (s *SyntheticSource) Start(emit Emit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emit
	return nil
}

// Stop implements Source.
func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = nil
}

// Inject delivers one event to the consumer and reports whether the
// source was started.
func (s *SyntheticSource) Inject(kind types.InputEventKind, payload string) bool {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit == nil {
		return false
	}
	emit(kind, payload)
	return true
}
