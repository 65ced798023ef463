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

// PutFrameArtifacts inserts a batch of frame artifacts for one
// recording. The batch is atomic: either every artifact lands or none
// do. Artifact ids and created_at are assigned when absent.
func (s *Store) PutFrameArtifacts(ctx context.Context, recordingID string, artifacts []types.FrameArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM recordings WHERE id = ?", recordingID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("recording", recordingID)
	}
	if err != nil {
		return err
	}

	query := `
	INSERT INTO frame_artifacts (id, recording_id, t_offset_seconds, ocr_text, vision_description, embedding_ref, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for i := range artifacts {
		a := &artifacts[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.RecordingID = recordingID

		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.RecordingID, a.TOffsetSeconds, a.OCRText, a.VisionDescription, a.EmbeddingRef, formatTime(a.CreatedAt),
		); err != nil {
			return classify(err)
		}
	}

	return tx.Commit()
}

// GetFrameArtifact retrieves one artifact by id.
func (s *Store) GetFrameArtifact(ctx context.Context, id string) (*types.FrameArtifact, error) {
	query := `
	SELECT id, recording_id, t_offset_seconds, ocr_text, vision_description, embedding_ref, created_at
	FROM frame_artifacts
	WHERE id = ?
	`
	var (
		a          types.FrameArtifact
		createdStr string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.RecordingID, &a.TOffsetSeconds, &a.OCRText, &a.VisionDescription, &a.EmbeddingRef, &createdStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("frame artifact", id)
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdStr)
	return &a, nil
}

// ListFrameArtifacts returns a recording's artifacts ordered by frame
// offset.
func (s *Store) ListFrameArtifacts(ctx context.Context, recordingID string) ([]types.FrameArtifact, error) {
	query := `
	SELECT id, recording_id, t_offset_seconds, ocr_text, vision_description, embedding_ref, created_at
	FROM frame_artifacts
	WHERE recording_id = ?
	ORDER BY t_offset_seconds, id
	`
	rows, err := s.db.QueryContext(ctx, query, recordingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var artifacts []types.FrameArtifact
	for rows.Next() {
		var (
			a          types.FrameArtifact
			createdStr string
		)
		if err := rows.Scan(&a.ID, &a.RecordingID, &a.TOffsetSeconds, &a.OCRText, &a.VisionDescription, &a.EmbeddingRef, &createdStr); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(createdStr)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// DeleteFrameArtifacts removes every artifact of a recording and
// reports how many rows were deleted. Used when an analysis is
// cancelled or restarted.
func (s *Store) DeleteFrameArtifacts(ctx context.Context, recordingID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM frame_artifacts WHERE recording_id = ?", recordingID)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
