package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vecgo"
	"github.com/klauspost/compress/gzip"
)

// minExploreFactor is the lower bound for the search explore factor;
// the index rejects explore factors below k.
const minExploreFactor = 50

// EmbeddedBackend persists records in a directory and serves searches
// from an in-process vecgo flat index (exact search, cosine distance).
// Records live in a gzip-compressed JSON-lines snapshot keyed by the
// collection name; the index is rebuilt from the snapshot on open.
//
// All operations are serialized by a single mutex: the backend is safe
// for concurrent use within one process, and one process is assumed to
// own the storage directory.
type EmbeddedBackend struct {
	mu      sync.Mutex
	dir     string
	name    string
	logger  *slog.Logger
	records []Record
	db      *vecgo.Vecgo[int] // payload is the record's position in records
	dim     int
}

// NewEmbeddedBackend opens (or creates) the storage directory and loads
// the named collection's snapshot if one exists.
func NewEmbeddedBackend(dir, name string, logger *slog.Logger) (*EmbeddedBackend, error) {
	if name == "" {
		name = DefaultCollectionName
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage directory: %v", ErrStoreUnavailable, err)
	}

	b := &EmbeddedBackend{
		dir:    dir,
		name:   name,
		logger: logger,
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

// snapshotPath is the collection's on-disk location.
func (b *EmbeddedBackend) snapshotPath() string {
	return filepath.Join(b.dir, b.name+".jsonl.gz")
}

// load reads the snapshot and rebuilds the index. A missing snapshot
// means an empty collection.
func (b *EmbeddedBackend) load() error {
	f, err := os.Open(b.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open snapshot: %v", ErrStoreUnavailable, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: read snapshot: %v", ErrStoreUnavailable, err)
	}
	defer zr.Close()

	var records []Record
	dec := json.NewDecoder(zr)
	for {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("%w: decode snapshot record: %v", ErrStoreUnavailable, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}

	if err := b.rebuildIndex(records); err != nil {
		return err
	}
	b.records = records
	b.logger.Info("Loaded collection snapshot", "collection", b.name, "records", len(records))
	return nil
}

// rebuildIndex creates a fresh flat index holding the given records.
func (b *EmbeddedBackend) rebuildIndex(records []Record) error {
	dim := len(records[0].Vector)
	db, err := vecgo.Flat[int](dim).Cosine().Build()
	if err != nil {
		return fmt.Errorf("%w: build index: %v", ErrStoreUnavailable, err)
	}

	items := make([]vecgo.VectorWithData[int], len(records))
	for i, rec := range records {
		if len(rec.Vector) != dim {
			db.Close()
			return fmt.Errorf("%w: record %s has %d dimensions, expected %d",
				ErrDimensionMismatch, rec.ID, len(rec.Vector), dim)
		}
		items[i] = vecgo.VectorWithData[int]{
			Vector:   rec.Vector,
			Data:     i,
			Metadata: rec.Metadata.document(),
		}
	}

	result := db.BatchInsert(context.Background(), items)
	for i, insErr := range result.Errors {
		if insErr != nil {
			db.Close()
			return fmt.Errorf("%w: index record %d: %v", ErrStoreUnavailable, i, insErr)
		}
	}

	if b.db != nil {
		b.db.Close()
	}
	b.db = db
	b.dim = dim
	return nil
}

// Insert appends records to the collection and rewrites the snapshot.
func (b *EmbeddedBackend) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		dim := len(records[0].Vector)
		db, err := vecgo.Flat[int](dim).Cosine().Build()
		if err != nil {
			return fmt.Errorf("%w: build index: %v", ErrStoreUnavailable, err)
		}
		b.db = db
		b.dim = dim
	}

	items := make([]vecgo.VectorWithData[int], len(records))
	for i, rec := range records {
		if len(rec.Vector) != b.dim {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(rec.Vector), b.dim)
		}
		items[i] = vecgo.VectorWithData[int]{
			Vector:   rec.Vector,
			Data:     len(b.records) + i,
			Metadata: rec.Metadata.document(),
		}
	}

	result := b.db.BatchInsert(ctx, items)
	for i, err := range result.Errors {
		if err != nil {
			b.restoreIndex()
			return fmt.Errorf("%w: index record %d: %v", ErrStoreUnavailable, i, err)
		}
	}

	prior := len(b.records)
	b.records = append(b.records, records...)
	if err := b.persist(); err != nil {
		// The snapshot was not replaced; drop the staged records so
		// Search and Count never serve state the disk does not hold.
		b.records = b.records[:prior]
		b.restoreIndex()
		return err
	}
	return nil
}

// restoreIndex rebuilds the index to match b.records exactly, resetting
// it when no records remain.
func (b *EmbeddedBackend) restoreIndex() {
	if len(b.records) == 0 {
		if b.db != nil {
			b.db.Close()
			b.db = nil
		}
		b.dim = 0
		return
	}
	if err := b.rebuildIndex(b.records); err != nil {
		b.logger.Error("Failed to restore index", "collection", b.name, "error", err)
	}
}

// persist atomically rewrites the snapshot file.
func (b *EmbeddedBackend) persist() error {
	tmp, err := os.CreateTemp(b.dir, b.name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create snapshot: %v", ErrStoreUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	zw := gzip.NewWriter(tmp)
	enc := json.NewEncoder(zw)
	for _, rec := range b.records {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: encode snapshot record: %v", ErrStoreUnavailable, err)
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write snapshot: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close snapshot: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), b.snapshotPath()); err != nil {
		return fmt.Errorf("%w: replace snapshot: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Search returns up to k nearest records matching filter, ascending by
// distance. An empty collection yields an empty result.
func (b *EmbeddedBackend) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil || len(b.records) == 0 {
		return nil, nil
	}
	if len(vector) != b.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), b.dim)
	}

	// With a filter, rank the whole collection and keep the k nearest
	// matching records. Ranking only a candidate window would drop
	// matches whose embeddings land far from the query; a record
	// satisfying the filter must never lose its slot to a nearer
	// non-matching one.
	limit := k
	if len(filter) > 0 {
		limit = len(b.records)
	}

	matches, err := b.db.Search(vector).KNN(limit).EF(max(limit, minExploreFactor)).Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: search index: %v", ErrStoreUnavailable, err)
	}

	results := make([]SearchResult, 0, min(k, len(matches)))
	for _, m := range matches {
		if m.Data < 0 || m.Data >= len(b.records) {
			continue // index and record log out of sync
		}
		rec := b.records[m.Data]
		if !rec.Metadata.matches(filter) {
			continue
		}
		results = append(results, SearchResult{
			ID:       rec.ID,
			Text:     rec.Text,
			Metadata: rec.Metadata,
			Distance: m.Distance,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Count returns the number of stored records.
func (b *EmbeddedBackend) Count(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records), nil
}

// Drop removes the snapshot and resets the in-memory index. The backend
// stays usable; the next Insert starts a fresh collection.
func (b *EmbeddedBackend) Drop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.snapshotPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove snapshot: %v", ErrStoreUnavailable, err)
	}
	if b.db != nil {
		b.db.Close()
		b.db = nil
	}
	b.records = nil
	b.dim = 0
	return nil
}

// Location returns the storage directory.
func (b *EmbeddedBackend) Location() string {
	return b.dir
}

// Close releases the in-memory index. The snapshot stays on disk.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		b.db.Close()
		b.db = nil
	}
	return nil
}
