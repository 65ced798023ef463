// SPDX-License-Identifier: MIT

// Package vector stores embeddings in a local badger database, one
// collection per embedding model. Collections fix their dimension at
// creation time.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/log"
	"github.com/memscreen/memscreen/internal/metrics"
)

// Key layout:
//   c:<collection>:meta      collection descriptor (JSON)
//   c:<collection>:v:<id>    one Record (JSON)

// Metadata travels with every record and is what filters match on.
type Metadata struct {
	RecordingID string  `json:"recording_id"`
	TOffset     float64 `json:"t_offset"`
	Source      string  `json:"source"` // ocr|vision|combined
}

// Record is one stored embedding.
type Record struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

// Filter narrows queries and deletes. Non-zero fields are applied as
// AND conditions.
type Filter struct {
	RecordingID string
	Source      string
}

func (f Filter) matches(m Metadata) bool {
	if f.RecordingID != "" && m.RecordingID != f.RecordingID {
		return false
	}
	if f.Source != "" && m.Source != f.Source {
		return false
	}
	return true
}

type collectionMeta struct {
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}

// CollectionInfo describes one collection.
type CollectionInfo struct {
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns the badger database holding all collections.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens or creates the vector database under dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Store{db: db, logger: log.WithComponent("vector")}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

const (
	retryAttempts = 3
	retryBase     = 50 * time.Millisecond
)

// withRetry re-runs op on transaction conflicts with exponential
// backoff. Anything else fails immediately.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBase << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = op()
		if err == nil || !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug().Int("attempt", attempt+1).Msg("retrying conflicting transaction")
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func metaKey(collection string) []byte {
	return []byte("c:" + collection + ":meta")
}

func recordKey(collection, id string) []byte {
	return []byte("c:" + collection + ":v:" + id)
}

func recordPrefix(collection string) []byte {
	return []byte("c:" + collection + ":v:")
}

// EnsureCollection creates the collection when absent. An existing
// collection with a different dimension is a hard error; embeddings
// from different models never share a collection.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return &DimensionError{Collection: name, Want: 1, Got: dim}
	}
	return s.withRetry(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(metaKey(name))
			if err == nil {
				var meta collectionMeta
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &meta)
				}); err != nil {
					return err
				}
				if meta.Dim != dim {
					return &DimensionError{Collection: name, Want: meta.Dim, Got: dim}
				}
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			meta := collectionMeta{Name: name, Dim: dim, CreatedAt: time.Now().UTC()}
			buf, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			s.logger.Info().Str("collection", name).Int("dim", dim).Msg("creating vector collection")
			return txn.Set(metaKey(name), buf)
		})
	})
}

// Collections lists every collection descriptor.
func (s *Store) Collections(ctx context.Context) ([]CollectionInfo, error) {
	var infos []CollectionInfo
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("c:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			key := item.Key()
			if len(key) < 5 || string(key[len(key)-5:]) != ":meta" {
				continue
			}
			var meta collectionMeta
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				continue
			}
			infos = append(infos, CollectionInfo(meta))
		}
		return nil
	})
	return infos, err
}

// getMeta loads a collection descriptor inside txn.
func getMeta(txn *badger.Txn, collection string) (*collectionMeta, error) {
	item, err := txn.Get(metaKey(collection))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, collection)
	}
	if err != nil {
		return nil, err
	}
	var meta collectionMeta
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	}); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Upsert writes a batch of records atomically. Every vector must match
// the collection dimension; a failing record fails the whole batch.
func (s *Store) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	err := s.withRetry(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			meta, err := getMeta(txn, collection)
			if err != nil {
				return err
			}
			for _, rec := range records {
				if len(rec.Vector) != meta.Dim {
					return &DimensionError{Collection: collection, Want: meta.Dim, Got: len(rec.Vector)}
				}
				buf, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				if err := txn.Set(recordKey(collection, rec.ID), buf); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	metrics.AddVectorsUpserted(len(records))
	return nil
}

// DeleteByFilter removes every record matching the filter and reports
// how many were deleted. Used when a recording is removed.
func (s *Store) DeleteByFilter(ctx context.Context, collection string, f Filter) (int, error) {
	deleted := 0
	err := s.withRetry(ctx, func() error {
		deleted = 0
		return s.db.Update(func(txn *badger.Txn) error {
			if _, err := getMeta(txn, collection); err != nil {
				return err
			}

			var doomed [][]byte
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			prefix := recordPrefix(collection)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				select {
				case <-ctx.Done():
					it.Close()
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
				if f.matches(rec.Metadata) {
					doomed = append(doomed, item.KeyCopy(nil))
				}
			}
			it.Close()

			for _, key := range doomed {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			deleted = len(doomed)
			return nil
		})
	})
	return deleted, err
}
