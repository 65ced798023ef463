// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/memscreen/memscreen/internal/types"
)

// SaveInputSession persists one tracking interval with its events as a
// single transaction. Event order is preserved by insertion order.
// Keystrokes count key presses; clicks count mouse-down events.
func (s *Store) SaveInputSession(ctx context.Context, start, end time.Time, events []types.InputEvent) (*types.InputSession, error) {
	session := &types.InputSession{
		ID:         uuid.NewString(),
		StartTime:  start,
		EndTime:    end,
		EventCount: len(events),
	}
	for _, ev := range events {
		switch ev.Kind {
		case types.EventKeyPress:
			session.KeystrokeCount++
		case types.EventMouseDown:
			session.ClickCount++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO input_sessions (id, start_time, end_time, event_count, keystroke_count, click_count) VALUES (?, ?, ?, ?, ?, ?)",
		session.ID, formatTime(start), formatTime(end), session.EventCount, session.KeystrokeCount, session.ClickCount,
	)
	if err != nil {
		return nil, classify(err)
	}

	insert := "INSERT INTO input_events (session_id, t, kind, payload) VALUES (?, ?, ?, ?)"
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, insert, session.ID, formatTime(ev.T), ev.Kind.String(), ev.Payload); err != nil {
			return nil, classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// GetInputSession retrieves one session by id.
func (s *Store) GetInputSession(ctx context.Context, id string) (*types.InputSession, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, start_time, end_time, event_count, keystroke_count, click_count FROM input_sessions WHERE id = ?", id)
	session, err := scanInputSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("input session", id)
	}
	return session, err
}

// ListInputSessions returns sessions newest first.
func (s *Store) ListInputSessions(ctx context.Context, limit int) ([]types.InputSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, start_time, end_time, event_count, keystroke_count, click_count FROM input_sessions ORDER BY start_time DESC, id LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []types.InputSession
	for rows.Next() {
		session, err := scanInputSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// ListInputEvents returns a session's events in capture order.
func (s *Store) ListInputEvents(ctx context.Context, sessionID string) ([]types.InputEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, t, kind, payload FROM input_events WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []types.InputEvent
	for rows.Next() {
		var (
			ev   types.InputEvent
			tStr string
			kind string
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &tStr, &kind, &ev.Payload); err != nil {
			return nil, err
		}
		ev.T = parseTime(tStr)
		ev.Kind = types.InputEventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteInputSession removes a session with its events and reports how
// many events were deleted.
func (s *Store) DeleteInputSession(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM input_events WHERE session_id = ?", id).Scan(&count); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM input_sessions WHERE id = ?", id)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, notFound("input session", id)
	}

	return count, tx.Commit()
}

func scanInputSession(row rowScanner) (*types.InputSession, error) {
	var (
		session  types.InputSession
		startStr string
		endStr   sql.NullString
	)
	if err := row.Scan(&session.ID, &startStr, &endStr, &session.EventCount, &session.KeystrokeCount, &session.ClickCount); err != nil {
		return nil, err
	}
	session.StartTime = parseTime(startStr)
	if endStr.Valid {
		session.EndTime = parseTime(endStr.String)
	}
	return &session, nil
}
