// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"strings"
	"time"
)

// KeywordHit is one keyword-search result. ArtifactID is empty when the
// match came from recording-level text (summary or tags) rather than a
// frame's OCR text.
type KeywordHit struct {
	RecordingID string
	ArtifactID  string
	Snippet     string
	Score       int
	StartTime   time.Time
}

// maxKeywordCandidates bounds how many rows a single search pulls into
// memory before scoring.
const maxKeywordCandidates = 500

// SearchKeyword matches query terms against frame OCR text, recording
// summaries, and content tags. Results are ordered by the number of
// distinct matching terms, then recency, then id.
func (s *Store) SearchKeyword(ctx context.Context, terms []string, limit int) ([]KeywordHit, error) {
	var cleaned []string
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 || limit <= 0 {
		return nil, nil
	}

	hits, err := s.searchArtifacts(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	recHits, err := s.searchRecordings(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	hits = append(hits, recHits...)

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.After(b.StartTime)
		}
		if a.RecordingID != b.RecordingID {
			return a.RecordingID < b.RecordingID
		}
		return a.ArtifactID < b.ArtifactID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) searchArtifacts(ctx context.Context, terms []string) ([]KeywordHit, error) {
	var (
		conds []string
		args  []any
	)
	for _, t := range terms {
		conds = append(conds, `a.ocr_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(t)+"%")
	}
	args = append(args, maxKeywordCandidates)

	query := `
	SELECT a.id, a.recording_id, a.ocr_text, r.start_time
	FROM frame_artifacts a
	JOIN recordings r ON r.id = a.recording_id
	WHERE ` + strings.Join(conds, " OR ") + `
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []KeywordHit
	for rows.Next() {
		var (
			artifactID  string
			recordingID string
			ocrText     string
			startStr    string
		)
		if err := rows.Scan(&artifactID, &recordingID, &ocrText, &startStr); err != nil {
			return nil, err
		}
		text := collapseSpace(ocrText)
		score, first := scoreTerms(text, terms)
		if score == 0 {
			continue
		}
		hits = append(hits, KeywordHit{
			RecordingID: recordingID,
			ArtifactID:  artifactID,
			Snippet:     snippetAround(text, first),
			Score:       score,
			StartTime:   parseTime(startStr),
		})
	}
	return hits, rows.Err()
}

func (s *Store) searchRecordings(ctx context.Context, terms []string) ([]KeywordHit, error) {
	var (
		conds []string
		args  []any
	)
	for _, t := range terms {
		pattern := "%" + escapeLike(t) + "%"
		conds = append(conds, `(content_summary LIKE ? ESCAPE '\' OR content_tags LIKE ? ESCAPE '\' OR user_tags LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, maxKeywordCandidates)

	query := `
	SELECT id, COALESCE(content_summary, ''), content_tags, user_tags, start_time
	FROM recordings
	WHERE ` + strings.Join(conds, " OR ") + `
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []KeywordHit
	for rows.Next() {
		var (
			recordingID string
			summary     string
			contentTags string
			userTags    string
			startStr    string
		)
		if err := rows.Scan(&recordingID, &summary, &contentTags, &userTags, &startStr); err != nil {
			return nil, err
		}
		text := collapseSpace(summary + " " + strings.Join(unmarshalTags(contentTags), " ") + " " + strings.Join(unmarshalTags(userTags), " "))
		score, first := scoreTerms(text, terms)
		if score == 0 {
			continue
		}
		hits = append(hits, KeywordHit{
			RecordingID: recordingID,
			Snippet:     snippetAround(text, first),
			Score:       score,
			StartTime:   parseTime(startStr),
		})
	}
	return hits, rows.Err()
}

// scoreTerms counts how many distinct terms occur in text and returns
// the byte offset of the earliest match.
func scoreTerms(text string, terms []string) (score, first int) {
	lower := strings.ToLower(text)
	first = -1
	for _, t := range terms {
		idx := strings.Index(lower, t)
		if idx < 0 {
			continue
		}
		score++
		if first < 0 || idx < first {
			first = idx
		}
	}
	if first < 0 {
		first = 0
	}
	return score, first
}

// snippetAround clips whitespace-collapsed text to a window around
// offset, keeping rune boundaries intact.
func snippetAround(text string, offset int) string {
	const window = 160

	if len(text) <= window {
		return text
	}

	start := offset - window/2
	if start < 0 {
		start = 0
	}
	if start > len(text)-window {
		start = len(text) - window
	}
	end := start + window

	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}

	snippet := text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
