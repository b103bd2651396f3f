package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
)

// Index implements storage.VectorIndex on BadgerDB.
//
// Similarity queries are exact: every entry of the collection is scored.
type Index struct {
	backend *Backend
	seq     *badger.Sequence
	logger  *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// NewIndex creates a new Index on an open backend.
// The caller keeps ownership of the backend.
func NewIndex(backend *Backend) (*Index, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	seq, err := backend.GetSequence(entrySeq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIndex, err)
	}

	return &Index{
		backend: backend,
		seq:     seq,
		logger:  slog.Default().With("component", "vector-index"),
	}, nil
}

// Close releases the entry sequence.
func (ix *Index) Close() error {
	return ix.seq.Release()
}

func validateCollection(name string) error {
	if name == "" || strings.IndexByte(name, keySep) >= 0 {
		return fmt.Errorf("%w: %w: %q", core.ErrIndex, storage.ErrInvalidCollection, name)
	}
	return nil
}

func indexErr(err error) error {
	if err == nil || errors.Is(err, core.ErrIndex) {
		return err
	}
	if errors.Is(err, badger.ErrDBClosed) {
		err = fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	}
	return fmt.Errorf("%w: %w", core.ErrIndex, err)
}

// nextSeq returns the next non-zero sequence number.
func (ix *Index) nextSeq() (uint64, error) {
	next, err := ix.seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		return ix.seq.Next()
	}
	return next, nil
}

// Add appends a single entry to a collection in one transaction.
func (ix *Index) Add(ctx context.Context, collection string, entry *core.Entry) (*core.Entry, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if entry == nil || len(entry.Embedding) == 0 {
		return nil, fmt.Errorf("%w: %w: entry has no embedding", core.ErrIndex, storage.ErrInvalidQuery)
	}
	if err := ctx.Err(); err != nil {
		return nil, indexErr(err)
	}

	stored := *entry
	stored.Collection = collection
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	seq, err := ix.nextSeq()
	if err != nil {
		return nil, indexErr(err)
	}
	stored.Seq = seq
	stored.InsertedAt = time.Now().UTC()

	err = ix.backend.Update(func(tx *badger.Txn) error {
		col, err := readCollection(tx, collection)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			col = &core.Collection{
				Name:      collection,
				Dimension: len(stored.Embedding),
				CreatedAt: stored.InsertedAt,
			}
			ix.logger.Info("created collection", "collection", collection, "dimension", col.Dimension)
		case err != nil:
			return err
		case col.Dimension != len(stored.Embedding):
			return fmt.Errorf("%w: %w: collection %q has dimension %d, entry has %d",
				core.ErrIndex, core.ErrDimensionMismatch, collection, col.Dimension, len(stored.Embedding))
		}

		idKey := makeEntryIDKey(collection, stored.ID)
		if _, err := tx.Get(idKey); err == nil {
			return fmt.Errorf("%w: entry %s", storage.ErrDuplicateKey, stored.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		value, err := storage.MarshalEntry(&stored)
		if err != nil {
			return err
		}
		if err := tx.Set(makeEntryKey(collection, seq), value); err != nil {
			return err
		}
		if err := tx.Set(idKey, storage.MarshalSeq(seq)); err != nil {
			return err
		}

		col.Count++
		return writeCollection(tx, col)
	})
	if err != nil {
		return nil, indexErr(err)
	}

	return &stored, nil
}

// Query scores every entry of the collection against vector and returns
// the topN nearest by cosine distance.
func (ix *Index) Query(ctx context.Context, collection string, vector []float32, topN int) ([]*core.QueryResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, fmt.Errorf("%w: %w: topN must be positive", core.ErrIndex, storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: %w: empty query vector", core.ErrIndex, storage.ErrInvalidQuery)
	}

	queryNorm := norm(vector)
	var results []*core.QueryResult
	skipped := 0

	err := ix.backend.View(func(tx *badger.Txn) error {
		col, err := readCollection(tx, collection)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if col.Dimension != len(vector) {
			return fmt.Errorf("%w: %w: collection %q has dimension %d, query has %d",
				core.ErrIndex, core.ErrDimensionMismatch, collection, col.Dimension, len(vector))
		}

		return iterateEntries(ctx, tx, collection, 0, func(entry *core.Entry) (bool, error) {
			// Entries still awaiting re-embedding keep their old dimension.
			if len(entry.Embedding) != len(vector) {
				skipped++
				return true, nil
			}
			results = append(results, &core.QueryResult{
				Entry:    entry,
				Distance: cosineDistance(vector, queryNorm, entry.Embedding),
			})
			return true, nil
		})
	})
	if err != nil {
		return nil, indexErr(err)
	}
	if skipped > 0 {
		ix.logger.Warn("skipped entries with stale dimension", "collection", collection, "count", skipped)
	}

	// Stable sort keeps insertion order among equal distances
	slices.SortStableFunc(results, func(a, b *core.QueryResult) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// GetAll returns every entry of a collection in insertion order.
func (ix *Index) GetAll(ctx context.Context, collection string) ([]*core.Entry, error) {
	return ix.Filter(ctx, collection, nil)
}

// Get returns one entry by ID.
func (ix *Index) Get(ctx context.Context, collection, id string) (*core.Entry, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var entry *core.Entry
	err := ix.backend.View(func(tx *badger.Txn) error {
		var err error
		entry, err = readEntryByID(tx, collection, id)
		return err
	})
	if err != nil {
		return nil, indexErr(err)
	}
	return entry, nil
}

// Filter scans the whole collection, keeping entries whose metadata matches
// every predicate key exactly.
func (ix *Index) Filter(ctx context.Context, collection string, predicate map[string]string) ([]*core.Entry, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var entries []*core.Entry
	err := ix.backend.View(func(tx *badger.Txn) error {
		return iterateEntries(ctx, tx, collection, 0, func(entry *core.Entry) (bool, error) {
			if matches(entry.Metadata, predicate) {
				entries = append(entries, entry)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, indexErr(err)
	}
	return entries, nil
}

func matches(meta core.Metadata, predicate map[string]string) bool {
	for key, want := range predicate {
		got, ok := meta.Get(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Scan returns up to limit entries with Seq greater than afterSeq.
func (ix *Index) Scan(ctx context.Context, collection string, afterSeq uint64, limit int) ([]*core.Entry, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %w: limit must be positive", core.ErrIndex, storage.ErrInvalidQuery)
	}

	entries := make([]*core.Entry, 0, limit)
	err := ix.backend.View(func(tx *badger.Txn) error {
		return iterateEntries(ctx, tx, collection, afterSeq+1, func(entry *core.Entry) (bool, error) {
			entries = append(entries, entry)
			return len(entries) < limit, nil
		})
	})
	if err != nil {
		return nil, indexErr(err)
	}
	return entries, nil
}

// ListCollections returns every collection ordered by name.
func (ix *Index) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	var cols []*core.Collection
	err := ix.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var col *core.Collection
			err := iter.Item().Value(func(val []byte) error {
				var err error
				col, err = storage.UnmarshalCollection(val)
				return err
			})
			if err != nil {
				return err
			}
			cols = append(cols, col)
		}
		return nil
	})
	if err != nil {
		return nil, indexErr(err)
	}
	return cols, nil
}

// GetCollection returns a collection descriptor.
func (ix *Index) GetCollection(ctx context.Context, name string) (*core.Collection, error) {
	if err := validateCollection(name); err != nil {
		return nil, err
	}

	var col *core.Collection
	err := ix.backend.View(func(tx *badger.Txn) error {
		var err error
		col, err = readCollection(tx, name)
		return err
	})
	if err != nil {
		return nil, indexErr(err)
	}
	return col, nil
}

// Count returns the number of entries in a collection.
func (ix *Index) Count(ctx context.Context, collection string) (int, error) {
	col, err := ix.GetCollection(ctx, collection)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return col.Count, nil
}

// ReplaceEmbeddings overwrites entry embeddings and sets the collection dimension.
func (ix *Index) ReplaceEmbeddings(ctx context.Context, collection string, entries []*core.Entry, dimension int) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: %w: dimension must be positive", core.ErrIndex, storage.ErrInvalidQuery)
	}
	for _, e := range entries {
		if len(e.Embedding) != dimension {
			return fmt.Errorf("%w: %w: entry %s has %d values, want %d",
				core.ErrIndex, core.ErrDimensionMismatch, e.ID, len(e.Embedding), dimension)
		}
	}

	err := ix.backend.Update(func(tx *badger.Txn) error {
		col, err := readCollection(tx, collection)
		if err != nil {
			return err
		}

		for _, e := range entries {
			stored, err := readEntryByID(tx, collection, e.ID)
			if err != nil {
				return err
			}
			stored.Embedding = e.Embedding
			value, err := storage.MarshalEntry(stored)
			if err != nil {
				return err
			}
			if err := tx.Set(makeEntryKey(collection, stored.Seq), value); err != nil {
				return err
			}
		}

		if col.Dimension != dimension {
			ix.logger.Info("collection dimension changed", "collection", collection,
				"from", col.Dimension, "to", dimension)
			col.Dimension = dimension
		}
		return writeCollection(tx, col)
	})
	return indexErr(err)
}

func readCollection(tx *badger.Txn, name string) (*core.Collection, error) {
	item, err := tx.Get(makeCollectionKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: collection %q", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	var col *core.Collection
	err = item.Value(func(val []byte) error {
		var err error
		col, err = storage.UnmarshalCollection(val)
		return err
	})
	return col, err
}

func writeCollection(tx *badger.Txn, col *core.Collection) error {
	value, err := storage.MarshalCollection(col)
	if err != nil {
		return err
	}
	return tx.Set(makeCollectionKey(col.Name), value)
}

func readEntryByID(tx *badger.Txn, collection, id string) (*core.Entry, error) {
	item, err := tx.Get(makeEntryIDKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: entry %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var seq uint64
	err = item.Value(func(val []byte) error {
		var err error
		seq, err = storage.UnmarshalSeq(val)
		return err
	})
	if err != nil {
		return nil, err
	}

	item, err = tx.Get(makeEntryKey(collection, seq))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: entry %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var entry *core.Entry
	err = item.Value(func(val []byte) error {
		var err error
		entry, err = storage.UnmarshalEntry(val)
		return err
	})
	return entry, err
}

// iterateEntries walks a collection in insertion order starting at fromSeq,
// calling fn until it returns false or an error.
func iterateEntries(ctx context.Context, tx *badger.Txn, collection string, fromSeq uint64, fn func(*core.Entry) (bool, error)) error {
	prefix := makeEntryPrefix(collection)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Seek(makeEntryKey(collection, fromSeq)); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := iter.Item()
		if !bytes.HasPrefix(item.Key(), prefix) {
			break
		}

		var entry *core.Entry
		err := item.Value(func(val []byte) error {
			var err error
			entry, err = storage.UnmarshalEntry(val)
			return err
		})
		if err != nil {
			return err
		}

		more, err := fn(entry)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// cosineDistance returns 1 - cos(a, b). A zero vector is treated as
// orthogonal to everything.
func cosineDistance(a []float32, aNorm float64, b []float32) float32 {
	bNorm := norm(b)
	if aNorm == 0 || bNorm == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(1 - dot/(aNorm*bNorm))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
