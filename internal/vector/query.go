// SPDX-License-Identifier: MIT

package vector

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/memscreen/memscreen/internal/metrics"
)

// Hit is one query result. Score is cosine similarity in [-1, 1],
// higher is more similar.
type Hit struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Query returns the k records most similar to vec, filtered. Results
// are ordered by descending score; ties break by ascending id so a
// query is deterministic for a fixed store state.
func (s *Store) Query(ctx context.Context, collection string, vec []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	var hits []Hit
	err := s.db.View(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, collection)
		if err != nil {
			return err
		}
		if len(vec) != meta.Dim {
			return &DimensionError{Collection: collection, Want: meta.Dim, Got: len(vec)}
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := recordPrefix(collection)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if !f.matches(rec.Metadata) {
				continue
			}
			hits = append(hits, Hit{
				ID:       rec.ID,
				Score:    cosine(vec, rec.Vector),
				Metadata: rec.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	metrics.IncVectorQuery()
	return hits, nil
}

// cosine computes cosine similarity. Zero vectors score 0.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
