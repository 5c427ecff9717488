package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// vectorName is the named vector holding chunk embeddings.
const vectorName = "content"

// QdrantBackend stores datasheet chunks in a remote Qdrant collection.
// It is the deployment alternative to EmbeddedBackend: same record
// schema, same exact-match filters, but the collection lives server-side
// and survives beyond a single host.
type QdrantBackend struct {
	client *qdrant.Client
	name   string
	host   string
	port   int
	logger *slog.Logger
}

// NewQdrantBackend connects to Qdrant and verifies health, retrying with
// exponential backoff before failing. The named collection is created
// lazily on first insert, so the embedding dimension never has to be
// known up front.
func NewQdrantBackend(host string, port int, name string, logger *slog.Logger) (*QdrantBackend, error) {
	if name == "" {
		name = DefaultCollectionName
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %v", ErrStoreUnavailable, err)
	}

	b := &QdrantBackend{
		client: client,
		name:   name,
		host:   host,
		port:   port,
		logger: logger,
	}

	if err := b.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return b, nil
}

// healthCheckWithRetry performs a health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (b *QdrantBackend) healthCheckWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		result, err := b.client.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// collectionExists reports whether the named collection exists.
func (b *QdrantBackend) collectionExists(ctx context.Context) (bool, error) {
	collections, err := b.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: list collections: %v", ErrStoreUnavailable, err)
	}
	for _, name := range collections {
		if name == b.name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection creates the collection with the given vector
// dimension and payload indexes for the filterable fields. Idempotent.
func (b *QdrantBackend) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := b.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.name,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", ErrStoreUnavailable, err)
	}

	// Without payload indexes, exact-match filtering degrades to a scan.
	for _, field := range []string{FieldCategory, FieldMPN, FieldManufacturer, FieldSourceFile, FieldFileHash} {
		_, err := b.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: b.name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("%w: create index for field %s: %v", ErrStoreUnavailable, field, err)
		}
	}

	b.logger.Info("Created collection", "collection", b.name, "dimension", dimension)
	return nil
}

// Insert upserts records, creating the collection on first use.
func (b *QdrantBackend) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	dim := len(records[0].Vector)
	for i, rec := range records {
		if len(rec.Vector) != dim {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(rec.Vector), dim)
		}
	}

	if err := b.ensureCollection(ctx, dim); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(rec.Vector...),
			}),
			Payload: qdrant.NewValueMap(recordPayload(rec)),
		}
	}

	if err := b.upsertWithRetry(ctx, points); err != nil {
		return fmt.Errorf("%w: upsert points: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// upsertWithRetry performs the upsert with exponential backoff.
func (b *QdrantBackend) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: b.name,
			Points:         points,
		})
		return err
	}, backoff.WithContext(bo, ctx))
}

// recordPayload flattens a record into a Qdrant payload map.
func recordPayload(rec Record) map[string]any {
	payload := map[string]any{
		"text":               rec.Text,
		FieldChunkIndex:      rec.Metadata.ChunkIndex,
		FieldChunkStart:      rec.Metadata.ChunkStart,
		FieldChunkEnd:        rec.Metadata.ChunkEnd,
		FieldChunkLength:     rec.Metadata.ChunkLength,
		FieldTotalTextLength: rec.Metadata.TotalTextLength,
	}
	for field, value := range rec.Metadata.stringFields() {
		if value != "" {
			payload[field] = value
		}
	}
	if !rec.Metadata.IngestedAt.IsZero() {
		payload[FieldIngestedAt] = rec.Metadata.IngestedAt.Format(time.RFC3339)
	}
	return payload
}

// metadataFromPayload rebuilds chunk metadata from a Qdrant payload.
// Unrecognized string fields land in Extra.
func metadataFromPayload(payload map[string]*qdrant.Value) Metadata {
	meta := Metadata{
		MPN:             payload[FieldMPN].GetStringValue(),
		Manufacturer:    payload[FieldManufacturer].GetStringValue(),
		Category:        payload[FieldCategory].GetStringValue(),
		Description:     payload[FieldDescription].GetStringValue(),
		SourceFile:      payload[FieldSourceFile].GetStringValue(),
		SourcePath:      payload[FieldSourcePath].GetStringValue(),
		DatasheetURL:    payload[FieldDatasheetURL].GetStringValue(),
		FileHash:        payload[FieldFileHash].GetStringValue(),
		ChunkIndex:      int(payload[FieldChunkIndex].GetIntegerValue()),
		ChunkStart:      int(payload[FieldChunkStart].GetIntegerValue()),
		ChunkEnd:        int(payload[FieldChunkEnd].GetIntegerValue()),
		ChunkLength:     int(payload[FieldChunkLength].GetIntegerValue()),
		TotalTextLength: int(payload[FieldTotalTextLength].GetIntegerValue()),
	}
	if ts := payload[FieldIngestedAt].GetStringValue(); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			meta.IngestedAt = parsed
		}
	}

	known := map[string]bool{
		"text": true, FieldMPN: true, FieldManufacturer: true, FieldCategory: true,
		FieldDescription: true, FieldSourceFile: true, FieldSourcePath: true,
		FieldDatasheetURL: true, FieldFileHash: true, FieldIngestedAt: true,
		FieldChunkIndex: true, FieldChunkStart: true, FieldChunkEnd: true,
		FieldChunkLength: true, FieldTotalTextLength: true,
	}
	for key, value := range payload {
		if known[key] {
			continue
		}
		if s := value.GetStringValue(); s != "" {
			if meta.Extra == nil {
				meta.Extra = map[string]string{}
			}
			meta.Extra[key] = s
		}
	}
	return meta
}

// Search performs filtered vector search. Qdrant scores cosine matches
// with higher-is-better similarity; results are converted to distances
// (1 - score) so all backends order ascending by dissimilarity.
func (b *QdrantBackend) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]SearchResult, error) {
	exists, err := b.collectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil // collection not created yet, nothing to match
	}

	var conditions []*qdrant.Condition
	for field, value := range filter {
		conditions = append(conditions, qdrant.NewMatch(field, value))
	}
	var queryFilter *qdrant.Filter
	if len(conditions) > 0 {
		queryFilter = &qdrant.Filter{Must: conditions}
	}

	using := vectorName
	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.name,
		Query:          qdrant.NewQuery(vector...),
		Using:          &using,
		Filter:         queryFilter,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query points: %v", ErrStoreUnavailable, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, SearchResult{
			ID:       point.Id.GetUuid(),
			Text:     point.Payload["text"].GetStringValue(),
			Metadata: metadataFromPayload(point.Payload),
			Distance: 1 - point.Score,
		})
	}
	return results, nil
}

// Count returns the number of stored records; zero if the collection has
// not been created yet.
func (b *QdrantBackend) Count(ctx context.Context) (int, error) {
	exists, err := b.collectionExists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	collection, err := b.client.GetCollectionInfo(ctx, b.name)
	if err != nil {
		return 0, fmt.Errorf("%w: get collection: %v", ErrStoreUnavailable, err)
	}
	return int(collection.GetPointsCount()), nil
}

// Drop deletes the collection. The next Insert recreates it.
func (b *QdrantBackend) Drop(ctx context.Context) error {
	exists, err := b.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := b.client.DeleteCollection(ctx, b.name); err != nil {
		return fmt.Errorf("%w: delete collection: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Location describes the remote collection address.
func (b *QdrantBackend) Location() string {
	return fmt.Sprintf("qdrant://%s:%d/%s", b.host, b.port, b.name)
}

// Close closes the client connection.
func (b *QdrantBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
