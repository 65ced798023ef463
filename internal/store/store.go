// SPDX-License-Identifier: MIT

// Package store provides SQLite persistence for recordings, frame
// artifacts, chat threads, and input sessions. All access is serialized
// through a single connection; the daemon is the only writer.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	sqlite "modernc.org/sqlite"

	"github.com/memscreen/memscreen/internal/log"
)

const timeLayout = time.RFC3339Nano

// Store owns the metadata database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database at dbPath and applies pending
// schema migrations. Open failures and migration failures both surface
// as ErrUnavailable.
func Open(dbPath string) (*Store, error) {
	return OpenWith(dbPath, DefaultDBConfig())
}

// OpenWith is Open with explicit connection parameters.
func OpenWith(dbPath string, cfg DBConfig) (*Store, error) {
	db, err := openDB(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &Store{db: db, logger: log.WithComponent("store")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migration failed: %v", ErrUnavailable, err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database still answers queries. Used by /health.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// migrations is the monotonically numbered schema sequence. Entry i
// migrates the database from version i to i+1. Statements must stay
// idempotent; each entry runs inside its own transaction.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		frame_count INTEGER NOT NULL DEFAULT 0,
		fps REAL NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		file_path TEXT,
		audio_source TEXT NOT NULL DEFAULT 'none' CHECK(audio_source IN ('none', 'microphone', 'system', 'mixed')),
		mode TEXT NOT NULL DEFAULT 'fullscreen' CHECK(mode IN ('fullscreen', 'fullscreen-single', 'region')),
		target_display_id TEXT,
		target_window_title TEXT,
		region_rect TEXT,
		app_name TEXT,
		content_summary TEXT,
		content_tags TEXT NOT NULL DEFAULT '[]',
		user_tags TEXT NOT NULL DEFAULT '[]',
		analysis_state TEXT NOT NULL DEFAULT 'pending' CHECK(analysis_state IN ('pending', 'analyzing', 'done', 'failed'))
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_start ON recordings(start_time);
	CREATE INDEX IF NOT EXISTS idx_recordings_state ON recordings(analysis_state);

	CREATE TABLE IF NOT EXISTS frame_artifacts (
		id TEXT PRIMARY KEY,
		recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		t_offset_seconds REAL NOT NULL,
		ocr_text TEXT NOT NULL DEFAULT '',
		vision_description TEXT NOT NULL DEFAULT '',
		embedding_ref TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_recording ON frame_artifacts(recording_id, t_offset_seconds);

	CREATE TABLE IF NOT EXISTS chat_threads (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL REFERENCES chat_threads(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK(role IN ('user', 'assistant', 'system')),
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		UNIQUE(thread_id, ordinal)
	);

	CREATE TABLE IF NOT EXISTS input_sessions (
		id TEXT PRIMARY KEY,
		start_time TEXT NOT NULL,
		end_time TEXT,
		event_count INTEGER NOT NULL DEFAULT 0,
		keystroke_count INTEGER NOT NULL DEFAULT 0,
		click_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS input_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES input_sessions(id) ON DELETE CASCADE,
		t TEXT NOT NULL,
		kind TEXT NOT NULL CHECK(kind IN ('key_press', 'key_release', 'mouse_down', 'mouse_up', 'mouse_move_sampled', 'scroll')),
		payload TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_input_events_session ON input_events(session_id, id);
	`,
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}

	for v := current + 1; v <= len(migrations); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v-1]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		s.logger.Debug().Int("version", v).Msg("applied schema migration")
	}
	return nil
}

// classify maps driver errors onto the store taxonomy. SQLite primary
// result code 19 covers all constraint violations; extended codes keep
// it in the low byte.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()%256 == 19 {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func unmarshalTags(s string) []string {
	var tags []string
	if s != "" {
		_ = json.Unmarshal([]byte(s), &tags)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags
}
