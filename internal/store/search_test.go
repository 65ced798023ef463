// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreen/internal/types"
)

func seedSearchFixtures(t *testing.T, s *Store) (older, newer string) {
	t.Helper()
	ctx := context.Background()

	rec1 := testRecording(time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC))
	rec1.ID = "rec-invoice"
	older, err := s.PutRecording(ctx, rec1)
	require.NoError(t, err)
	require.NoError(t, s.PutFrameArtifacts(ctx, older, []types.FrameArtifact{
		{TOffsetSeconds: 0, OCRText: "Quarterly invoice from Acme Corp for cloud services", EmbeddingRef: "emb-inv-1"},
		{TOffsetSeconds: 15, OCRText: "Payment due within 30 days", EmbeddingRef: "emb-inv-2"},
	}))

	rec2 := testRecording(time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC))
	rec2.ID = "rec-docs"
	rec2.ContentSummary = "Browsing documentation about Go channels"
	rec2.ContentTags = []string{"golang", "concurrency"}
	newer, err = s.PutRecording(ctx, rec2)
	require.NoError(t, err)
	require.NoError(t, s.PutFrameArtifacts(ctx, newer, []types.FrameArtifact{
		{TOffsetSeconds: 0, OCRText: "select waits on multiple channel operations", EmbeddingRef: "emb-doc-1"},
	}))

	return older, newer
}

func TestSearchKeywordScoresDistinctTerms(t *testing.T) {
	s := newTestStore(t)
	older, _ := seedSearchFixtures(t, s)

	hits, err := s.SearchKeyword(context.Background(), []string{"acme", "invoice"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	top := hits[0]
	assert.Equal(t, older, top.RecordingID)
	assert.NotEmpty(t, top.ArtifactID)
	assert.Equal(t, 2, top.Score)
	assert.Contains(t, strings.ToLower(top.Snippet), "acme")
}

func TestSearchKeywordMatchesRecordingText(t *testing.T) {
	s := newTestStore(t)
	_, newer := seedSearchFixtures(t, s)

	hits, err := s.SearchKeyword(context.Background(), []string{"golang"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, newer, hits[0].RecordingID)
	assert.Empty(t, hits[0].ArtifactID, "tag matches carry no artifact")
}

func TestSearchKeywordRecencyTieBreak(t *testing.T) {
	s := newTestStore(t)
	_, newer := seedSearchFixtures(t, s)

	// "channel" appears in an artifact of the newer recording and in the
	// newer recording's summary; "payment" only in the older one. Equal
	// scores must rank the newer recording first.
	hits, err := s.SearchKeyword(context.Background(), []string{"channel", "payment"}, 10)
	require.NoError(t, err)
	require.True(t, len(hits) >= 2)
	assert.Equal(t, newer, hits[0].RecordingID)
}

func TestSearchKeywordLimitAndEmptyTerms(t *testing.T) {
	s := newTestStore(t)
	seedSearchFixtures(t, s)

	hits, err := s.SearchKeyword(context.Background(), []string{"the", "channel", "invoice"}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.SearchKeyword(context.Background(), []string{"  ", ""}, 10)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestSearchKeywordEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecording(time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC))
	id, err := s.PutRecording(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, s.PutFrameArtifacts(ctx, id, []types.FrameArtifact{
		{TOffsetSeconds: 0, OCRText: "discount 100% applied", EmbeddingRef: "emb-pct"},
	}))

	hits, err := s.SearchKeyword(ctx, []string{"100%"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = s.SearchKeyword(ctx, []string{"1%0"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "wildcards in terms must match literally")
}

func TestSnippetAroundClipsLongText(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 40) + "needle in the middle " + strings.Repeat("dolor sit ", 40)
	idx := strings.Index(long, "needle")

	snippet := snippetAround(long, idx)
	assert.LessOrEqual(t, len(snippet), 170)
	assert.Contains(t, snippet, "needle")
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))

	assert.Equal(t, "short text", snippetAround("short text", 0))
}
