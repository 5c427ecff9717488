// Package ingest turns datasheet documents into stored, searchable
// chunks: extract text, clean it, split it into overlapping segments,
// and add the segments to a collection with full provenance metadata.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bull/datasheet-search/internal/chunk"
	"github.com/bull/datasheet-search/internal/extract"
	"github.com/bull/datasheet-search/internal/store"
)

// HashUnknown is stored as the file hash when the source cannot be
// hashed. Ingestion proceeds; only the dedup signal is lost.
const HashUnknown = "unknown"

// ComponentInfo identifies the component a document describes. The
// caller supplies it; the pipeline copies it onto every chunk.
type ComponentInfo struct {
	MPN          string            `yaml:"mpn"`
	Manufacturer string            `yaml:"manufacturer"`
	Category     string            `yaml:"category"`
	Description  string            `yaml:"description"`
	DatasheetURL string            `yaml:"datasheet_url"`
	Extra        map[string]string `yaml:"extra"`
}

// Pipeline ingests documents into a collection.
type Pipeline struct {
	collection *store.Collection
	extractor  *extract.Extractor
	chunker    *chunk.Chunker
	logger     *slog.Logger
}

// NewPipeline creates a pipeline. A nil chunker gets the default
// datasheet chunking parameters; a nil extractor gets a default one.
func NewPipeline(collection *store.Collection, extractor *extract.Extractor, chunker *chunk.Chunker, logger *slog.Logger) *Pipeline {
	if extractor == nil {
		extractor = extract.New()
	}
	if chunker == nil {
		chunker = chunk.New(chunk.DefaultMinSize, chunk.DefaultMaxSize, chunk.DefaultOverlap)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		collection: collection,
		extractor:  extractor,
		chunker:    chunker,
		logger:     logger,
	}
}

// source records where a document came from. Empty fields are omitted
// from the stored metadata.
type source struct {
	file string
	path string
	hash string
}

// Ingest cleans raw text, chunks it, and stores the chunks. Returns the
// generated record ids in chunk order. Blank input is a no-op, not an
// error. The stored file hash is the SHA-256 of the raw text.
func (p *Pipeline) Ingest(ctx context.Context, rawText string, info ComponentInfo) ([]string, error) {
	return p.ingest(ctx, rawText, info, source{hash: hashBytes([]byte(rawText))})
}

// IngestFile reads a document from disk, extracts its text, and ingests
// it. The stored file hash covers the original file bytes, so unchanged
// files re-ingested later are recognizable by hash.
func (p *Pipeline) IngestFile(ctx context.Context, path string, info ComponentInfo) ([]string, error) {
	text, err := p.extractor.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract document: %w", err)
	}
	src := source{
		file: filepath.Base(path),
		path: path,
		hash: FileHash(path),
	}
	return p.ingest(ctx, text, info, src)
}

// IngestDocument ingests an in-memory document fetched from elsewhere
// (a remote repository, an archive). The name's extension selects the
// text extraction; the stored file hash covers the document bytes.
func (p *Pipeline) IngestDocument(ctx context.Context, name string, data []byte, info ComponentInfo) ([]string, error) {
	text, err := p.extractor.FromBytes(name, data)
	if err != nil {
		return nil, fmt.Errorf("extract document: %w", err)
	}
	src := source{
		file: filepath.Base(name),
		path: name,
		hash: hashBytes(data),
	}
	return p.ingest(ctx, text, info, src)
}

func (p *Pipeline) ingest(ctx context.Context, rawText string, info ComponentInfo, src source) ([]string, error) {
	if strings.TrimSpace(rawText) == "" {
		p.logger.Warn("Skipping empty document", "mpn", info.MPN, "path", src.path)
		return nil, nil
	}

	cleaned := Clean(rawText)
	segments := p.chunker.Split(cleaned)
	if len(segments) == 0 {
		p.logger.Warn("Document produced no chunks", "mpn", info.MPN, "path", src.path)
		return nil, nil
	}

	// Overlapping windows over repetitive text (register tables, pin
	// listings) can produce identical chunks; store each distinct chunk
	// once per document.
	seen := make(map[string]bool, len(segments))
	now := time.Now().UTC()
	texts := make([]string, 0, len(segments))
	metas := make([]store.Metadata, 0, len(segments))
	for _, seg := range segments {
		key := hashBytes([]byte(seg.Text))
		if seen[key] {
			continue
		}
		seen[key] = true

		texts = append(texts, seg.Text)
		metas = append(metas, store.Metadata{
			MPN:             info.MPN,
			Manufacturer:    info.Manufacturer,
			Category:        info.Category,
			Description:     info.Description,
			DatasheetURL:    info.DatasheetURL,
			SourceFile:      src.file,
			SourcePath:      src.path,
			FileHash:        src.hash,
			IngestedAt:      now,
			ChunkIndex:      seg.Index,
			ChunkStart:      seg.Start,
			ChunkEnd:        seg.End,
			ChunkLength:     seg.Length,
			TotalTextLength: seg.TotalLength,
			Extra:           info.Extra,
		})
	}

	ids, err := p.collection.Add(ctx, texts, metas)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	p.logger.Info("Ingested document",
		"mpn", info.MPN,
		"path", src.path,
		"chunks", len(ids),
		"duplicates_skipped", len(segments)-len(ids))
	return ids, nil
}

// BatchItem pairs a document path with its component identity.
type BatchItem struct {
	Path      string        `yaml:"path"`
	Component ComponentInfo `yaml:"component"`
}

// BatchIngest ingests a set of documents, isolating failures: a missing
// or broken document is logged and mapped to an empty id list, and the
// rest of the batch proceeds. Returns the record ids per document path.
func (p *Pipeline) BatchIngest(ctx context.Context, items []BatchItem) map[string][]string {
	results := make(map[string][]string, len(items))
	for _, item := range items {
		if _, err := os.Stat(item.Path); err != nil {
			p.logger.Error("Document not found, skipping", "path", item.Path, "error", err)
			results[item.Path] = []string{}
			continue
		}

		ids, err := p.IngestFile(ctx, item.Path, item.Component)
		if err != nil {
			p.logger.Error("Failed to ingest document, skipping", "path", item.Path, "error", err)
			results[item.Path] = []string{}
			continue
		}
		if ids == nil {
			ids = []string{}
		}
		results[item.Path] = ids
	}
	return results
}

// FileHash returns the hex SHA-256 of a file's bytes, or HashUnknown if
// the file cannot be read.
func FileHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return HashUnknown
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return HashUnknown
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
