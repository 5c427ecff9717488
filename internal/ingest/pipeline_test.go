package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/datasheet-search/internal/chunk"
	"github.com/bull/datasheet-search/internal/embedding"
	"github.com/bull/datasheet-search/internal/extract"
	"github.com/bull/datasheet-search/internal/store"
)

// bowEncoder is a deterministic bag-of-words encoder, sufficient to
// exercise the pipeline without a live embedding model.
type bowEncoder struct {
	dim int
}

func (e bowEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[int(h.Sum32())%e.dim]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e bowEncoder) Dimension() int {
	return e.dim
}

func newTestPipeline(t *testing.T, chunker *chunk.Chunker) (*Pipeline, *store.Collection) {
	t.Helper()

	backend, err := store.NewEmbeddedBackend(t.TempDir(), store.DefaultCollectionName, nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	provider := embedding.NewProvider(func() (embedding.Encoder, error) {
		return bowEncoder{dim: 64}, nil
	}, 0, nil)
	collection := store.NewCollection(store.DefaultCollectionName, provider, backend, nil)

	return NewPipeline(collection, extract.New(), chunker, nil), collection
}

var bme280Info = ComponentInfo{
	MPN:          "BME280",
	Manufacturer: "Bosch",
	Category:     "sensor",
	Description:  "combined humidity and pressure sensor",
}

func TestIngest_StoresChunksWithMetadata(t *testing.T) {
	pipeline, collection := newTestPipeline(t, nil)
	ctx := context.Background()

	text := "The BME280 measures barometric pressure with 1 hPa absolute accuracy."
	ids, err := pipeline.Ingest(ctx, text, bme280Info)
	require.NoError(t, err)
	require.Len(t, ids, 1, "short text yields a single chunk")

	stats, err := collection.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)

	results, err := collection.Search(ctx, text, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	meta := results[0].Metadata
	assert.Equal(t, "BME280", meta.MPN)
	assert.Equal(t, "Bosch", meta.Manufacturer)
	assert.Equal(t, "sensor", meta.Category)
	assert.Equal(t, 0, meta.ChunkIndex)
	assert.False(t, meta.IngestedAt.IsZero())

	rawSum := sha256.Sum256([]byte(text))
	assert.Equal(t, hex.EncodeToString(rawSum[:]), meta.FileHash,
		"direct ingestion hashes the raw text")
}

func TestIngest_EmptyText(t *testing.T) {
	pipeline, collection := newTestPipeline(t, nil)
	ctx := context.Background()

	for _, text := range []string{"", "   \n\t  "} {
		ids, err := pipeline.Ingest(ctx, text, bme280Info)
		require.NoError(t, err)
		assert.Empty(t, ids)
	}

	stats, err := collection.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRecords)
}

func TestIngest_LongTextProducesMultipleChunks(t *testing.T) {
	pipeline, collection := newTestPipeline(t, nil)
	ctx := context.Background()

	var b strings.Builder
	for i := 0; b.Len() < 5000; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("x", i%7+1))
		b.WriteString(" describes an electrical characteristic of this component. ")
	}

	ids, err := pipeline.Ingest(ctx, b.String(), bme280Info)
	require.NoError(t, err)
	assert.Greater(t, len(ids), 1, "a 5000-char document splits into several chunks")

	stats, err := collection.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(ids), stats.TotalRecords)
}

func TestIngest_DuplicateChunksStoredOnce(t *testing.T) {
	// A tiny chunker over perfectly repetitive text produces identical
	// windows; only distinct chunk texts are stored.
	pipeline, collection := newTestPipeline(t, chunk.New(10, 20, 0))
	ctx := context.Background()

	ids, err := pipeline.Ingest(ctx, strings.Repeat("abcd. ", 20), bme280Info)
	require.NoError(t, err)

	stats, err := collection.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(ids), stats.TotalRecords)
	assert.Less(t, len(ids), 5, "identical windows collapse to distinct texts")
}

func TestIngestFile(t *testing.T) {
	pipeline, collection := newTestPipeline(t, nil)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "bme280.txt")
	content := []byte("The BME280 operates from 1.71V to 3.6V supply voltage.")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	ids, err := pipeline.IngestFile(ctx, path, bme280Info)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	results, err := collection.Search(ctx, string(content), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	meta := results[0].Metadata
	assert.Equal(t, "bme280.txt", meta.SourceFile)
	assert.Equal(t, path, meta.SourcePath)

	fileSum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(fileSum[:]), meta.FileHash,
		"file ingestion hashes the original file bytes")
}

func TestIngestFile_UnsupportedFormat(t *testing.T) {
	pipeline, _ := newTestPipeline(t, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	_, err := pipeline.IngestFile(context.Background(), path, bme280Info)
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)
}

func TestBatchIngest_IsolatesFailures(t *testing.T) {
	pipeline, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	dir := t.TempDir()
	first := filepath.Join(dir, "stm32.txt")
	second := filepath.Join(dir, "sht31.txt")
	missing := filepath.Join(dir, "does-not-exist.txt")
	require.NoError(t, os.WriteFile(first, []byte("72 MHz ARM Cortex-M3 core."), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("Calibrated humidity output."), 0o644))

	results := pipeline.BatchIngest(ctx, []BatchItem{
		{Path: first, Component: ComponentInfo{MPN: "STM32F103", Category: "microcontroller"}},
		{Path: missing, Component: ComponentInfo{MPN: "GHOST"}},
		{Path: second, Component: ComponentInfo{MPN: "SHT31", Category: "sensor"}},
	})

	require.Len(t, results, 3, "every requested document gets an entry")
	assert.NotEmpty(t, results[first])
	assert.NotEmpty(t, results[second])
	assert.Empty(t, results[missing], "a missing document maps to an empty id list")
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	manifest := `datasheets:
  - path: sensors/bme280.md
    component:
      mpn: BME280
      manufacturer: Bosch
      category: sensor
  - path: /abs/stm32.txt
    component:
      mpn: STM32F103
`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	got, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, got.Datasheets, 2)

	assert.Equal(t, filepath.Join(dir, "sensors", "bme280.md"), got.Datasheets[0].Path,
		"relative paths resolve against the manifest directory")
	assert.Equal(t, "BME280", got.Datasheets[0].Component.MPN)
	assert.Equal(t, "/abs/stm32.txt", got.Datasheets[1].Path)
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("datasheets:\n  - component: {mpn: X}\n"), 0o644))
	_, err = LoadManifest(bad)
	assert.Error(t, err, "an entry without a path is rejected")
}
