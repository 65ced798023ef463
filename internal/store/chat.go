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

// CreateThread inserts a new chat thread and makes it the active one.
func (s *Store) CreateThread(ctx context.Context, title string) (*types.ChatThread, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE chat_threads SET is_active = 0 WHERE is_active = 1"); err != nil {
		return nil, err
	}

	now := time.Now()
	thread := &types.ChatThread{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO chat_threads (id, title, created_at, updated_at, is_active) VALUES (?, ?, ?, ?, 1)",
		thread.ID, thread.Title, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread retrieves a thread by id.
func (s *Store) GetThread(ctx context.Context, id string) (*types.ChatThread, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at, is_active FROM chat_threads WHERE id = ?", id)
	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("chat thread", id)
	}
	return thread, err
}

// ActiveThread returns the thread marked active, or ErrNotFound when
// none is.
func (s *Store) ActiveThread(ctx context.Context) (*types.ChatThread, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at, is_active FROM chat_threads WHERE is_active = 1")
	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active chat thread", "")
	}
	return thread, err
}

// ListThreads returns all threads, most recently updated first.
func (s *Store) ListThreads(ctx context.Context) ([]types.ChatThread, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at, is_active FROM chat_threads ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var threads []types.ChatThread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *thread)
	}
	return threads, rows.Err()
}

// SetActiveThread marks one thread active and every other inactive.
func (s *Store) SetActiveThread(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE chat_threads SET is_active = 0 WHERE is_active = 1"); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "UPDATE chat_threads SET is_active = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("chat thread", id)
	}
	return tx.Commit()
}

// RenameThread replaces a thread's title and bumps updated_at.
func (s *Store) RenameThread(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chat_threads SET title = ?, updated_at = ? WHERE id = ?",
		title, formatTime(time.Now()), id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("chat thread", id)
	}
	return nil
}

// DeleteThread removes a thread and, through foreign keys, its
// messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_threads WHERE id = ?", id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("chat thread", id)
	}
	return nil
}

// AppendMessage appends a message to a thread. The ordinal is assigned
// inside the transaction as max(existing)+1, so messages are totally
// ordered even under concurrent appends. The thread's updated_at is
// bumped.
func (s *Store) AppendMessage(ctx context.Context, threadID string, role types.ChatRole, content string) (*types.ChatMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM chat_threads WHERE id = ?", threadID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("chat thread", threadID)
	}
	if err != nil {
		return nil, err
	}

	var ordinal int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(ordinal), 0) + 1 FROM chat_messages WHERE thread_id = ?", threadID).Scan(&ordinal)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &types.ChatMessage{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
		Ordinal:   ordinal,
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO chat_messages (id, thread_id, role, content, created_at, ordinal) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ThreadID, msg.Role.String(), msg.Content, formatTime(now), msg.Ordinal,
	)
	if err != nil {
		return nil, classify(err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE chat_threads SET updated_at = ? WHERE id = ?", formatTime(now), threadID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns a thread's messages ordered by ordinal.
func (s *Store) History(ctx context.Context, threadID string) ([]types.ChatMessage, error) {
	return s.queryMessages(ctx,
		"SELECT id, thread_id, role, content, created_at, ordinal FROM chat_messages WHERE thread_id = ? ORDER BY ordinal",
		threadID)
}

// RecentMessages returns the last n messages of a thread in ordinal
// order.
func (s *Store) RecentMessages(ctx context.Context, threadID string, n int) ([]types.ChatMessage, error) {
	msgs, err := s.queryMessages(ctx,
		"SELECT id, thread_id, role, content, created_at, ordinal FROM chat_messages WHERE thread_id = ? ORDER BY ordinal DESC LIMIT ?",
		threadID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]types.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []types.ChatMessage
	for rows.Next() {
		var (
			m          types.ChatMessage
			role       string
			createdStr string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &createdStr, &m.Ordinal); err != nil {
			return nil, err
		}
		m.Role = types.ChatRole(role)
		m.CreatedAt = parseTime(createdStr)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanThread(row rowScanner) (*types.ChatThread, error) {
	var (
		t          types.ChatThread
		createdStr string
		updatedStr string
		active     int
	)
	if err := row.Scan(&t.ID, &t.Title, &createdStr, &updatedStr, &active); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdStr)
	t.UpdatedAt = parseTime(updatedStr)
	t.IsActive = active == 1
	return &t, nil
}
