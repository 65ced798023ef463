// SPDX-License-Identifier: MIT

package input

import (
	"fmt"
	"sort"
	"time"

	"github.com/memscreen/memscreen/internal/types"
)

// Pattern detection thresholds.
const (
	typingBurstMinKeys   = 10
	typingBurstMaxGap    = 2 * time.Second
	clickStreakMinClicks = 3
	clickStreakMaxGap    = time.Second
	idleGapMin           = 30 * time.Second
)

// Analysis summarizes one stored session's activity.
type Analysis struct {
	Categories map[string]float64 `json:"categories"`
	Patterns   []string           `json:"patterns"`
	EventCount int                `json:"event_count"`
	Keystrokes int                `json:"keystrokes"`
	Clicks     int                `json:"clicks"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
}

// Analyze derives activity categories and notable patterns from a stored
// session. Categories hold each activity's share of all events; patterns
// list typing bursts, click streaks and idle gaps in order of
// occurrence.
func Analyze(session *types.InputSession, events []types.InputEvent) Analysis {
	return Analysis{
		Categories: categorize(events),
		Patterns:   detectPatterns(session, events),
		EventCount: session.EventCount,
		Keystrokes: session.KeystrokeCount,
		Clicks:     session.ClickCount,
		StartTime:  session.StartTime,
		EndTime:    session.EndTime,
	}
}

func categorize(events []types.InputEvent) map[string]float64 {
	counts := map[string]int{"typing": 0, "pointing": 0, "scrolling": 0}
	for _, ev := range events {
		switch ev.Kind {
		case types.EventKeyPress, types.EventKeyRelease:
			counts["typing"]++
		case types.EventMouseDown, types.EventMouseUp, types.EventMouseMoveSampled:
			counts["pointing"]++
		case types.EventScroll:
			counts["scrolling"]++
		}
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	shares := make(map[string]float64, len(counts))
	for name, n := range counts {
		if total == 0 {
			shares[name] = 0
			continue
		}
		shares[name] = float64(n) / float64(total)
	}
	return shares
}

type patternAt struct {
	at   time.Time
	text string
}

func detectPatterns(session *types.InputSession, events []types.InputEvent) []string {
	var found []patternAt
	found = append(found, idleGaps(session, events)...)
	found = append(found, typingBursts(events)...)
	found = append(found, clickStreaks(events)...)
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	out := make([]string, len(found))
	for i, p := range found {
		out[i] = p.text
	}
	return out
}

// idleGaps covers the whole interval, so a session that starts or ends
// with dead air reports it too.
func idleGaps(session *types.InputSession, events []types.InputEvent) []patternAt {
	var out []patternAt
	prev := session.StartTime
	for _, ev := range events {
		if gap := ev.T.Sub(prev); gap >= idleGapMin {
			out = append(out, patternAt{at: prev, text: fmt.Sprintf("idle for %s", gap.Truncate(time.Second))})
		}
		prev = ev.T
	}
	if !session.EndTime.IsZero() {
		if gap := session.EndTime.Sub(prev); gap >= idleGapMin {
			out = append(out, patternAt{at: prev, text: fmt.Sprintf("idle for %s", gap.Truncate(time.Second))})
		}
	}
	return out
}

// typingBursts finds runs of key presses separated by at most
// typingBurstMaxGap. Interleaved pointer activity does not break a run;
// only the time gap between presses does.
func typingBursts(events []types.InputEvent) []patternAt {
	var out []patternAt
	var runStart, last time.Time
	run := 0

	flush := func() {
		if run >= typingBurstMinKeys {
			out = append(out, patternAt{
				at:   runStart,
				text: fmt.Sprintf("typing burst: %d keys in %s", run, spanString(runStart, last)),
			})
		}
		run = 0
	}

	for _, ev := range events {
		if ev.Kind != types.EventKeyPress {
			continue
		}
		if run > 0 && ev.T.Sub(last) > typingBurstMaxGap {
			flush()
		}
		if run == 0 {
			runStart = ev.T
		}
		run++
		last = ev.T
	}
	flush()
	return out
}

func clickStreaks(events []types.InputEvent) []patternAt {
	var out []patternAt
	var runStart, last time.Time
	run := 0

	flush := func() {
		if run >= clickStreakMinClicks {
			out = append(out, patternAt{
				at:   runStart,
				text: fmt.Sprintf("click streak: %d clicks in %s", run, spanString(runStart, last)),
			})
		}
		run = 0
	}

	for _, ev := range events {
		if ev.Kind != types.EventMouseDown {
			continue
		}
		if run > 0 && ev.T.Sub(last) > clickStreakMaxGap {
			flush()
		}
		if run == 0 {
			runStart = ev.T
		}
		run++
		last = ev.T
	}
	flush()
	return out
}

func spanString(from, to time.Time) string {
	return to.Sub(from).Truncate(100 * time.Millisecond).String()
}
