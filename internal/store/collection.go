// Package store provides the persisted vector collection behind
// datasheet retrieval: named sets of (id, text, embedding, metadata)
// records with k-nearest-neighbor search and exact-match metadata
// filtering.
//
// A Collection owns the embedding step: callers hand it raw text and it
// embeds via the Provider it was created with. Embedding-space
// consistency is load-bearing — queries must be encoded by the same
// encoder as the stored records, so changing encoders requires a new
// collection.
//
// Backends assume a single process owns the storage location; concurrent
// writers from other processes must be prevented externally.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bull/datasheet-search/internal/embedding"
)

// Backend stores embedded records and serves filtered nearest-neighbor
// queries. Implementations: EmbeddedBackend (directory-persisted, in
// process) and QdrantBackend (remote).
type Backend interface {
	// Insert stores records as a unit, preserving input order.
	Insert(ctx context.Context, records []Record) error

	// Search returns up to k nearest records ascending by distance,
	// restricted to records matching filter. An empty store or an
	// unmatched filter yields an empty result, not an error.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]SearchResult, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Drop irreversibly removes all records. The backend stays usable:
	// the next Insert recreates the collection.
	Drop(ctx context.Context) error

	// Location describes where records are persisted.
	Location() string

	Close() error
}

// Collection is a named vector collection bound to one embedding
// provider and one backend.
type Collection struct {
	name     string
	provider *embedding.Provider
	backend  Backend
	logger   *slog.Logger
}

// NewCollection creates a collection. If name is empty,
// DefaultCollectionName is used.
func NewCollection(name string, provider *embedding.Provider, backend Backend, logger *slog.Logger) *Collection {
	if name == "" {
		name = DefaultCollectionName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection{
		name:     name,
		provider: provider,
		backend:  backend,
		logger:   logger,
	}
}

// Add embeds texts and stores them with their metadata, one fresh UUID
// per text. Returns the generated ids in input order.
// Fails with ErrLengthMismatch if the slices disagree in length, and
// with embedding.ErrEmptyInput if any text is blank: callers are
// expected to hand over real chunk content.
func (c *Collection) Add(ctx context.Context, texts []string, metas []Metadata) ([]string, error) {
	if len(texts) != len(metas) {
		return nil, fmt.Errorf("%w: %d texts, %d metadata entries", ErrLengthMismatch, len(texts), len(metas))
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := c.provider.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}

	records := make([]Record, len(texts))
	ids := make([]string, len(texts))
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("text %d: %w", i, embedding.ErrEmptyInput)
		}
		ids[i] = uuid.New().String()
		records[i] = Record{
			ID:       ids[i],
			Text:     texts[i],
			Vector:   vec,
			Metadata: metas[i],
		}
	}

	if err := c.backend.Insert(ctx, records); err != nil {
		return nil, fmt.Errorf("insert records: %w", err)
	}

	c.logger.Info("Added records to collection", "collection", c.name, "count", len(records))
	return ids, nil
}

// Search embeds the query with the collection's provider and returns up
// to k nearest records matching filter, ascending by distance. A nil
// filter matches everything.
func (c *Collection) Search(ctx context.Context, query string, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	vector, err := c.provider.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := c.backend.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}

	c.logger.Debug("Search complete", "collection", c.name, "results", len(results))
	return results, nil
}

// SearchByCategory is a convenience wrapper for the one predicate the
// public API exercises: exact match on the component category.
func (c *Collection) SearchByCategory(ctx context.Context, query, category string, k int) ([]SearchResult, error) {
	return c.Search(ctx, query, k, Filter{FieldCategory: category})
}

// Stats reports the collection's size and storage location.
func (c *Collection) Stats(ctx context.Context) (Stats, error) {
	count, err := c.backend.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	return Stats{
		TotalRecords:    count,
		CollectionName:  c.name,
		StorageLocation: c.backend.Location(),
	}, nil
}

// Drop irreversibly deletes all records. Subsequent operations behave as
// if the collection never existed; the next Add recreates it.
func (c *Collection) Drop(ctx context.Context) error {
	if err := c.backend.Drop(ctx); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	c.logger.Info("Dropped collection", "collection", c.name)
	return nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Close releases backend resources.
func (c *Collection) Close() error {
	return c.backend.Close()
}
