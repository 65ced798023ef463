// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memscreen/memscreen/internal/types"
)

const recordingColumns = `id, start_time, end_time, frame_count, fps, duration_seconds,
	file_path, audio_source, mode, target_display_id, target_window_title,
	region_rect, app_name, content_summary, content_tags, user_tags, analysis_state`

// RecordingFilter narrows ListRecordings. Zero values mean "any".
type RecordingFilter struct {
	From          time.Time
	To            time.Time
	Tags          []string // every listed tag must appear in content_tags or user_tags
	Mode          types.CaptureMode
	AnalysisState types.AnalysisState
	Limit         int // 0 means 100
}

// PutRecording appends a recording row. An id is assigned when absent;
// the (possibly assigned) id is returned.
func (s *Store) PutRecording(ctx context.Context, rec *types.Recording) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Mode == "" {
		rec.Mode = types.ModeFullscreen
	}
	if rec.AudioSource == "" {
		rec.AudioSource = types.AudioNone
	}
	if rec.AnalysisState == "" {
		rec.AnalysisState = types.AnalysisPending
	}

	var regionRect any
	if rec.RegionRect != nil {
		b, err := json.Marshal(rec.RegionRect)
		if err != nil {
			return "", fmt.Errorf("encode region rect: %w", err)
		}
		regionRect = string(b)
	}

	query := `
	INSERT INTO recordings (` + recordingColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		formatTime(rec.StartTime),
		formatTime(rec.EndTime),
		rec.FrameCount,
		rec.FPS,
		rec.DurationSeconds,
		nullable(rec.FilePath),
		rec.AudioSource.String(),
		rec.Mode.String(),
		nullable(rec.TargetDisplayID),
		nullable(rec.TargetWindowTitle),
		regionRect,
		nullable(rec.AppName),
		nullable(rec.ContentSummary),
		marshalTags(rec.ContentTags),
		marshalTags(rec.UserTags),
		rec.AnalysisState.String(),
	)
	if err != nil {
		return "", classify(err)
	}
	return rec.ID, nil
}

// GetRecording retrieves a recording by id.
func (s *Store) GetRecording(ctx context.Context, id string) (*types.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = ?`

	rec, err := scanRecording(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("recording", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecording applies the non-nil fields of patch. Attributes
// outside the patch set are immutable after creation.
func (s *Store) UpdateRecording(ctx context.Context, id string, patch types.RecordingPatch) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.AnalysisState != nil {
		add("analysis_state", patch.AnalysisState.String())
	}
	if patch.ContentSummary != nil {
		add("content_summary", nullable(*patch.ContentSummary))
	}
	if patch.ContentTags != nil {
		add("content_tags", marshalTags(*patch.ContentTags))
	}
	if patch.UserTags != nil {
		add("user_tags", marshalTags(*patch.UserTags))
	}
	if patch.AppName != nil {
		add("app_name", nullable(*patch.AppName))
	}
	if patch.EndTime != nil {
		add("end_time", formatTime(*patch.EndTime))
	}
	if patch.FPS != nil {
		add("fps", *patch.FPS)
	}
	if patch.FrameCount != nil {
		add("frame_count", *patch.FrameCount)
	}
	if patch.DurationSeconds != nil {
		add("duration_seconds", *patch.DurationSeconds)
	}
	if patch.FilePath != nil {
		add("file_path", nullable(*patch.FilePath))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := "UPDATE recordings SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("recording", id)
	}
	return nil
}

// ListRecordings returns recordings matching the filter, newest first.
func (s *Store) ListRecordings(ctx context.Context, f RecordingFilter) ([]types.Recording, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time <= ?")
		args = append(args, formatTime(f.To))
	}
	if f.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, f.Mode.String())
	}
	if f.AnalysisState != "" {
		where = append(where, "analysis_state = ?")
		args = append(args, f.AnalysisState.String())
	}
	for _, tag := range f.Tags {
		// Tags are stored as JSON arrays, so a quoted match is exact.
		pattern := `%"` + escapeLike(tag) + `"%`
		where = append(where, `(content_tags LIKE ? ESCAPE '\' OR user_tags LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + recordingColumns + ` FROM recordings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC, id DESC LIMIT ?"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []types.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// DeleteRecording removes a recording and, through foreign keys, all of
// its frame artifacts. Vector records are the caller's concern.
func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("recording", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*types.Recording, error) {
	var (
		rec        types.Recording
		startStr   string
		endStr     string
		filePath   sql.NullString
		audio      string
		mode       string
		displayID  sql.NullString
		winTitle   sql.NullString
		regionRect sql.NullString
		appName    sql.NullString
		summary    sql.NullString
		contentTag string
		userTag    string
		state      string
	)
	if err := row.Scan(
		&rec.ID, &startStr, &endStr, &rec.FrameCount, &rec.FPS, &rec.DurationSeconds,
		&filePath, &audio, &mode, &displayID, &winTitle,
		&regionRect, &appName, &summary, &contentTag, &userTag, &state,
	); err != nil {
		return nil, err
	}

	rec.StartTime = parseTime(startStr)
	rec.EndTime = parseTime(endStr)
	rec.FilePath = filePath.String
	rec.AudioSource = types.AudioSource(audio)
	rec.Mode = types.CaptureMode(mode)
	rec.TargetDisplayID = displayID.String
	rec.TargetWindowTitle = winTitle.String
	rec.AppName = appName.String
	rec.ContentSummary = summary.String
	rec.ContentTags = unmarshalTags(contentTag)
	rec.UserTags = unmarshalTags(userTag)
	rec.AnalysisState = types.AnalysisState(state)

	if regionRect.Valid {
		var r types.Rect
		if err := json.Unmarshal([]byte(regionRect.String), &r); err == nil {
			rec.RegionRect = &r
		}
	}
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
