//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQdrantBackend connects to a local Qdrant and starts from an empty
// collection. Skips the test if Qdrant is not running.
func setupQdrantBackend(t *testing.T) *QdrantBackend {
	backend, err := NewQdrantBackend("localhost", 6334, "component_datasheets_test", nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() {
		_ = backend.Drop(context.Background())
		backend.Close()
	})

	require.NoError(t, backend.Drop(context.Background()))
	return backend
}

func testRecord(text, mpn, category string, vector []float32) Record {
	return Record{
		ID:     uuid.New().String(),
		Text:   text,
		Vector: vector,
		Metadata: Metadata{
			MPN:      mpn,
			Category: category,
		},
	}
}

func TestQdrantBackend_InsertSearchRoundTrip(t *testing.T) {
	backend := setupQdrantBackend(t)
	ctx := context.Background()

	records := []Record{
		testRecord("8-bit AVR microcontroller", "ATMEGA328P", "microcontroller", []float32{1, 0, 0, 0}),
		testRecord("digital temperature sensor", "TMP117", "sensor", []float32{0, 1, 0, 0}),
		testRecord("capacitive humidity sensor", "DHT22", "sensor", []float32{0, 0.9, 0.1, 0}),
		testRecord("low dropout linear regulator", "AMS1117", "power", []float32{0, 0, 0, 1}),
	}
	require.NoError(t, backend.Insert(ctx, records))

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Unfiltered search: nearest record first, distances ascending.
	results, err := backend.Search(ctx, []float32{0, 1, 0, 0}, 4, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "TMP117", results[0].Metadata.MPN)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	// Category filter: both sensors, nothing else.
	results, err = backend.Search(ctx, []float32{0, 1, 0, 0}, 5, Filter{FieldCategory: "sensor"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, "sensor", result.Metadata.Category)
	}
}

func TestQdrantBackend_SearchBeforeCreate(t *testing.T) {
	backend := setupQdrantBackend(t)

	results, err := backend.Search(context.Background(), []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQdrantBackend_DimensionMismatch(t *testing.T) {
	backend := setupQdrantBackend(t)
	ctx := context.Background()

	records := []Record{
		testRecord("a", "A", "sensor", []float32{1, 0, 0, 0}),
		testRecord("b", "B", "sensor", []float32{1, 0}),
	}
	assert.ErrorIs(t, backend.Insert(ctx, records), ErrDimensionMismatch)
}

func TestQdrantBackend_Drop(t *testing.T) {
	backend := setupQdrantBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Insert(ctx, []Record{
		testRecord("test chunk", "X1", "sensor", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, backend.Drop(ctx))

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
