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

func TestPutFrameArtifactsBatchIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutRecording(ctx, testRecording(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	// Second artifact reuses the first id, so the whole batch must roll
	// back.
	err = s.PutFrameArtifacts(ctx, id, []types.FrameArtifact{
		{ID: "fa-1", TOffsetSeconds: 0, EmbeddingRef: "emb-1"},
		{ID: "fa-1", TOffsetSeconds: 15, EmbeddingRef: "emb-2"},
	})
	require.ErrorIs(t, err, ErrConstraint)

	artifacts, err := s.ListFrameArtifacts(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestPutFrameArtifactsUnknownRecording(t *testing.T) {
	s := newTestStore(t)

	err := s.PutFrameArtifacts(context.Background(), "ghost", []types.FrameArtifact{
		{TOffsetSeconds: 0, EmbeddingRef: "emb-1"},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFrameArtifactsOrderedByOffset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutRecording(ctx, testRecording(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	require.NoError(t, s.PutFrameArtifacts(ctx, id, []types.FrameArtifact{
		{TOffsetSeconds: 30, OCRText: "third", EmbeddingRef: "emb-3"},
		{TOffsetSeconds: 0, OCRText: "first", EmbeddingRef: "emb-1"},
		{TOffsetSeconds: 15, OCRText: "second", EmbeddingRef: "emb-2"},
	}))

	artifacts, err := s.ListFrameArtifacts(ctx, id)
	require.NoError(t, err)
	require.Len(t, artifacts, 3)
	assert.Equal(t, "first", artifacts[0].OCRText)
	assert.Equal(t, "second", artifacts[1].OCRText)
	assert.Equal(t, "third", artifacts[2].OCRText)

	for _, a := range artifacts {
		assert.NotEmpty(t, a.ID, "batch insert assigns ids")
		assert.Equal(t, id, a.RecordingID)
		assert.False(t, a.CreatedAt.IsZero())
	}
}

func TestDeleteFrameArtifactsReportsCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutRecording(ctx, testRecording(time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	require.NoError(t, s.PutFrameArtifacts(ctx, id, []types.FrameArtifact{
		{TOffsetSeconds: 0, EmbeddingRef: "emb-1"},
		{TOffsetSeconds: 15, EmbeddingRef: "emb-2"},
	}))

	n, err := s.DeleteFrameArtifacts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteFrameArtifacts(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}
