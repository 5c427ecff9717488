package store

import (
	"time"

	"github.com/hupe1980/vecgo/metadata"
)

// DefaultCollectionName is the single logical collection holding all
// component datasheet chunks.
const DefaultCollectionName = "component_datasheets"

// Metadata describes the provenance of one stored chunk: the component
// it documents, the source document it came from, and the chunk's
// position within that document. Unanticipated fields go in Extra so
// new provenance keys never require a schema migration.
type Metadata struct {
	MPN          string `json:"mpn,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`

	SourceFile   string    `json:"source_file,omitempty"`
	SourcePath   string    `json:"source_path,omitempty"`
	DatasheetURL string    `json:"datasheet_url,omitempty"`
	FileHash     string    `json:"file_hash,omitempty"`
	IngestedAt   time.Time `json:"ingested_at"`

	ChunkIndex      int `json:"chunk_index"`
	ChunkStart      int `json:"chunk_start"`
	ChunkEnd        int `json:"chunk_end"`
	ChunkLength     int `json:"chunk_length"`
	TotalTextLength int `json:"total_text_length"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Record is one stored chunk: id, raw text, embedding, and provenance.
// Records are immutable once inserted; re-ingestion produces new records
// and FileHash is the caller's dedup signal.
type Record struct {
	ID       string    `json:"id"` // UUIDv4, generated at insertion
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

// SearchResult is one ranked match. Distance is a dissimilarity score;
// lower means more similar. Results are returned ascending by distance.
type SearchResult struct {
	ID       string
	Text     string
	Metadata Metadata
	Distance float32
}

// Stats summarizes a collection.
type Stats struct {
	TotalRecords    int
	CollectionName  string
	StorageLocation string
}

// Filter is an exact-match metadata predicate. Every key/value pair must
// match (AND logic). Keys use the payload field names below, e.g.
// Filter{"category": "sensor"}.
type Filter map[string]string

// Payload field names shared by all backends. String-valued fields are
// filterable; chunk offsets are stored for provenance only.
const (
	FieldMPN             = "mpn"
	FieldManufacturer    = "manufacturer"
	FieldCategory        = "category"
	FieldDescription     = "description"
	FieldSourceFile      = "source_file"
	FieldSourcePath      = "source_path"
	FieldDatasheetURL    = "datasheet_url"
	FieldFileHash        = "file_hash"
	FieldIngestedAt      = "ingested_at"
	FieldChunkIndex      = "chunk_index"
	FieldChunkStart      = "chunk_start"
	FieldChunkEnd        = "chunk_end"
	FieldChunkLength     = "chunk_length"
	FieldTotalTextLength = "total_text_length"
)

// stringFields maps filterable payload keys to their values.
func (m *Metadata) stringFields() map[string]string {
	fields := map[string]string{
		FieldMPN:          m.MPN,
		FieldManufacturer: m.Manufacturer,
		FieldCategory:     m.Category,
		FieldDescription:  m.Description,
		FieldSourceFile:   m.SourceFile,
		FieldSourcePath:   m.SourcePath,
		FieldDatasheetURL: m.DatasheetURL,
		FieldFileHash:     m.FileHash,
	}
	for k, v := range m.Extra {
		fields[k] = v
	}
	return fields
}

// document converts the metadata to a vecgo filterable document.
func (m *Metadata) document() metadata.Metadata {
	doc := metadata.Metadata{}
	for k, v := range m.stringFields() {
		if v != "" {
			doc[k] = metadata.String(v)
		}
	}
	doc[FieldChunkIndex] = metadata.Int(int64(m.ChunkIndex))
	return doc
}

// matches reports whether every filter predicate holds for this
// metadata. An empty filter matches everything.
func (m *Metadata) matches(f Filter) bool {
	if len(f) == 0 {
		return true
	}
	fields := m.stringFields()
	for key, want := range f {
		if fields[key] != want {
			return false
		}
	}
	return true
}
