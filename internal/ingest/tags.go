// SPDX-License-Identifier: MIT

package ingest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxTagLength drops tags that are clearly model runaway, not topics.
const maxTagLength = 64

// NormalizeTags canonicalizes content tags: NFC normalization,
// lowercase, trimmed, deduplicated with first-seen order preserved.
// No stemming is applied.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(norm.NFC.String(t)))
		t = strings.Trim(t, ".,;:\"'")
		if t == "" || len(t) > maxTagLength {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
