// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreen/internal/types"
)

func TestSaveInputSessionCountsAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	events := []types.InputEvent{
		{T: start.Add(100 * time.Millisecond), Kind: types.EventKeyPress, Payload: "h"},
		{T: start.Add(150 * time.Millisecond), Kind: types.EventKeyRelease, Payload: "h"},
		{T: start.Add(300 * time.Millisecond), Kind: types.EventMouseDown, Payload: "left"},
		{T: start.Add(340 * time.Millisecond), Kind: types.EventMouseUp, Payload: "left"},
		{T: start.Add(400 * time.Millisecond), Kind: types.EventMouseMoveSampled, Payload: "120,340"},
		{T: start.Add(500 * time.Millisecond), Kind: types.EventKeyPress, Payload: "i"},
	}

	session, err := s.SaveInputSession(ctx, start, start.Add(time.Second), events)
	require.NoError(t, err)
	assert.Equal(t, 6, session.EventCount)
	assert.Equal(t, 2, session.KeystrokeCount, "only key presses count as keystrokes")
	assert.Equal(t, 1, session.ClickCount, "only mouse-down events count as clicks")

	got, err := s.ListInputEvents(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, got, 6)
	for i, ev := range got {
		assert.Equal(t, events[i].Kind, ev.Kind, "capture order must survive the batch insert")
		assert.Equal(t, events[i].Payload, ev.Payload)
		assert.Equal(t, session.ID, ev.SessionID)
	}

	stored, err := s.GetInputSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.EventCount, stored.EventCount)
	assert.True(t, stored.EndTime.After(stored.StartTime))
}

func TestSaveInputSessionEmpty(t *testing.T) {
	s := newTestStore(t)

	start := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	session, err := s.SaveInputSession(context.Background(), start, start, nil)
	require.NoError(t, err)
	assert.Zero(t, session.EventCount)
}

func TestListInputSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 5, 16, 0, 0, 0, time.UTC)
	older, err := s.SaveInputSession(ctx, base, base.Add(time.Minute), nil)
	require.NoError(t, err)
	newer, err := s.SaveInputSession(ctx, base.Add(time.Hour), base.Add(61*time.Minute), nil)
	require.NoError(t, err)

	sessions, err := s.ListInputSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)
}

func TestDeleteInputSessionReportsEventCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
	session, err := s.SaveInputSession(ctx, start, start.Add(time.Second), []types.InputEvent{
		{T: start, Kind: types.EventScroll, Payload: "-3"},
		{T: start.Add(200 * time.Millisecond), Kind: types.EventScroll, Payload: "-1"},
	})
	require.NoError(t, err)

	n, err := s.DeleteInputSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetInputSession(ctx, session.ID)
	require.ErrorIs(t, err, ErrNotFound)

	events, err := s.ListInputEvents(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = s.DeleteInputSession(ctx, session.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
