// SPDX-License-Identifier: MIT

package input

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/types"
)

// moveSampleEvery caps stored mouse moves to one per interval.
const moveSampleEvery = 50 * time.Millisecond

// Saver persists one finished tracking interval as a single atomic
// batch. *store.Store satisfies it.
type Saver interface {
	SaveInputSession(ctx context.Context, start, end time.Time, events []types.InputEvent) (*types.InputSession, error)
}

// Tracker buffers input events between Start and the next save. Start
// while already tracking and Stop while idle are no-ops, so callers can
// toggle tracking without checking state first.
type Tracker struct {
	source Source
	saver  Saver
	logger zerolog.Logger
	now    func() time.Time

	saveMu sync.Mutex

	mu        sync.Mutex
	active    bool
	startTime time.Time
	lastMove  time.Time
	events    []types.InputEvent
	gen       uint64
}

// NewTracker wires a tracker to its event source and persistence.
func NewTracker(source Source, saver Saver, logger zerolog.Logger) *Tracker {
	return &Tracker{
		source: source,
		saver:  saver,
		logger: logger,
		now:    time.Now,
	}
}

// Start opens the event source and begins buffering. If no interval is
// open yet, one starts now.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return nil
	}
	if err := t.source.Start(t.handle); err != nil {
		return err
	}
	t.active = true
	if t.startTime.IsZero() {
		t.startTime = t.now()
	}
	t.logger.Info().Time("start_time", t.startTime).Msg("input tracking started")
	return nil
}

// Stop halts the event source. Buffered events stay queued for the next
// save.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	buffered := len(t.events)
	t.mu.Unlock()

	// Outside the lock: the source waits for its delivery goroutine,
	// which may itself be blocked in handle.
	t.source.Stop()
	t.logger.Info().Int("events", buffered).Msg("input tracking stopped")
}

// MarkStart rebinds the open interval's start to now and discards events
// captured before it, so a recording that begins mid-session gets an
// input session aligned with its own start.
func (t *Tracker) MarkStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.startTime = now
	var kept []types.InputEvent
	for _, ev := range t.events {
		if !ev.T.Before(now) {
			kept = append(kept, ev)
		}
	}
	t.events = kept
	t.gen++
	t.logger.Debug().Time("start_time", now).Msg("tracking start rebound")
}

// Status reports whether tracking is active and how many events are
// buffered.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{IsTracking: t.active, EventCount: len(t.events)}
}

// SaveFromTracking persists the open interval with its buffered events
// and opens a fresh one if tracking continues. Events arriving during
// the save stay queued for the next one.
func (t *Tracker) SaveFromTracking(ctx context.Context) (*types.InputSession, error) {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	if t.startTime.IsZero() {
		t.mu.Unlock()
		return nil, ErrNoSession
	}
	start := t.startTime
	end := t.now()
	events := t.events
	genAt := t.gen
	t.mu.Unlock()

	session, err := t.saver.SaveInputSession(ctx, start, end, events)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	// A MarkStart during the save already reshaped the buffer; leave
	// its result alone in that case.
	if t.gen == genAt {
		t.events = t.events[len(events):]
		t.gen++
		if t.active {
			t.startTime = end
		} else {
			t.startTime = time.Time{}
		}
	}
	t.mu.Unlock()

	t.logger.Info().
		Str("session_id", session.ID).
		Int("events", session.EventCount).
		Msg("input session saved")
	return session, nil
}

func (t *Tracker) handle(kind types.InputEventKind, payload string) {
	if !kind.IsValid() {
		return
	}

	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	now := t.now()
	if kind == types.EventMouseMoveSampled {
		if !t.lastMove.IsZero() && now.Sub(t.lastMove) < moveSampleEvery {
			t.mu.Unlock()
			return
		}
		t.lastMove = now
	}
	t.events = append(t.events, types.InputEvent{T: now, Kind: kind, Payload: payload})
	t.mu.Unlock()

	metrics.AddInputEvents(metricKind(kind), 1)
}

// metricKind folds releases into their press category so every captured
// event lands in exactly one counter bucket.
func metricKind(kind types.InputEventKind) string {
	switch kind {
	case types.EventKeyPress, types.EventKeyRelease:
		return "keystroke"
	case types.EventMouseDown, types.EventMouseUp:
		return "mouse_click"
	case types.EventMouseMoveSampled:
		return "mouse_move"
	default:
		return "scroll"
	}
}
