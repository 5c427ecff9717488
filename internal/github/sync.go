package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/datasheet-search/internal/ingest"
)

// Syncer ingests every datasheet document in a repository directory.
type Syncer struct {
	source   *Source
	pipeline *ingest.Pipeline
	logger   *slog.Logger
}

// NewSyncer creates a syncer over the given source and pipeline.
func NewSyncer(source *Source, pipeline *ingest.Pipeline, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		source:   source,
		pipeline: pipeline,
		logger:   logger,
	}
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	CommitSHA string
	Documents int
	Chunks    int
	Failed    []string
}

// Sync lists, fetches, and ingests all datasheet documents. Documents
// that fail to fetch or ingest are recorded and skipped; the run only
// fails outright when the repository cannot be listed.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	commitSHA, err := s.source.LatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve repository head: %w", err)
	}

	paths, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repository documents: %w", err)
	}
	s.logger.Info("Starting repository sync", "documents", len(paths), "commit", commitSHA)

	result := &SyncResult{CommitSHA: commitSHA}
	for _, relPath := range paths {
		doc, err := s.source.Fetch(ctx, relPath)
		if err != nil {
			s.logger.Error("Failed to fetch document, skipping", "path", relPath, "error", err)
			result.Failed = append(result.Failed, relPath)
			continue
		}

		info := DeriveComponentInfo(relPath)
		info.DatasheetURL = doc.URL

		ids, err := s.pipeline.IngestDocument(ctx, doc.Path, doc.Content, info)
		if err != nil {
			s.logger.Error("Failed to ingest document, skipping", "path", relPath, "error", err)
			result.Failed = append(result.Failed, relPath)
			continue
		}

		result.Documents++
		result.Chunks += len(ids)
	}

	s.logger.Info("Repository sync complete",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"failed", len(result.Failed))
	return result, nil
}
