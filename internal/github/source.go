package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/datasheet-search/internal/ingest"
)

// RemoteDoc is one datasheet document fetched from a repository.
type RemoteDoc struct {
	Path    string // path relative to the source's base path
	Content []byte
	SHA     string // Git blob SHA
	URL     string // raw content URL
}

// Source reads datasheet documents from one repository directory.
type Source struct {
	client   *Client
	owner    string
	repo     string
	basePath string
}

// NewSource creates a source for the given repository directory. An
// empty basePath reads from the repository root.
func NewSource(client *Client, owner, repo, basePath string) *Source {
	return &Source{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
	}
}

// isDatasheetFile reports whether a repository file is a format the
// ingestion pipeline can extract.
func isDatasheetFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown", ".txt", ".text":
		return true
	}
	return false
}

// List recursively lists all datasheet files under the base path,
// returning paths relative to it.
func (s *Source) List(ctx context.Context) ([]string, error) {
	return s.listRecursive(ctx, s.basePath, "")
}

func (s *Source) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if isDatasheetFile(*item.Name) {
				docs = append(docs, itemRelPath)
			}

		case "dir":
			subDocs, err := s.listRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// Fetch retrieves one datasheet document by its relative path.
func (s *Source) Fetch(ctx context.Context, relativePath string) (*RemoteDoc, error) {
	fullPath := path.Join(s.basePath, relativePath)

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fullPath, err)
	}

	rawURL := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/main/%s", s.owner, s.repo, fullPath)

	return &RemoteDoc{
		Path:    relativePath,
		Content: content,
		SHA:     *fileContent.SHA,
		URL:     rawURL,
	}, nil
}

// LatestCommitSHA returns the SHA of the most recent commit touching
// the base path. Callers use it to decide whether a sync is needed.
func (s *Source) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo,
		&github.CommitsListOptions{
			Path:        s.basePath,
			ListOptions: github.ListOptions{PerPage: 1},
		})
	if err != nil {
		return "", fmt.Errorf("get latest commit: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", s.basePath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}
	return *commits[0].SHA, nil
}

// DeriveComponentInfo infers component identity from a repository path
// laid out as <category>/<part-number>.<ext>. The top-level directory
// is the category and the file name is the part number. Files at the
// repository root get no category.
func DeriveComponentInfo(relativePath string) ingest.ComponentInfo {
	info := ingest.ComponentInfo{}

	name := path.Base(relativePath)
	info.MPN = strings.ToUpper(strings.TrimSuffix(name, path.Ext(name)))

	if dir := path.Dir(relativePath); dir != "." {
		parts := strings.Split(dir, "/")
		info.Category = strings.ToLower(parts[0])
	}
	return info
}
