package loader

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bull/ragchat/internal/github"
)

// GitHubSource reads every markdown file below a repository directory,
// addressed as github://owner/repo/path/to/dir.
type GitHubSource struct {
	uri     string
	fetcher *github.Fetcher
	logger  *slog.Logger
}

// NewGitHubSource parses uri and binds it to client.
func NewGitHubSource(uri string, client *github.Client, logger *slog.Logger) (*GitHubSource, error) {
	owner, repo, basePath, err := parseGitHubURI(uri)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubSource{
		uri:     uri,
		fetcher: github.NewFetcher(client, owner, repo, basePath),
		logger:  logger,
	}, nil
}

// URI returns the github:// address this source reads.
func (s *GitHubSource) URI() string { return s.uri }

// Fetch lists the directory and reads each markdown file. Individual files
// that fail are logged and skipped; failing to list the directory fails the source.
func (s *GitHubSource) Fetch(ctx context.Context) ([]Document, error) {
	paths, err := s.fetcher.ListDocs(ctx)
	if err != nil {
		return nil, &FetchError{URI: s.uri, Err: err}
	}

	commitSHA, err := s.fetcher.GetLatestCommitSHA(ctx)
	if err != nil {
		s.logger.Warn("Could not resolve commit", "uri", s.uri, "error", err)
	}

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		fetched, err := s.fetcher.FetchDoc(ctx, p)
		if err != nil {
			s.logger.Warn("Failed to fetch document", "uri", s.uri, "path", p, "error", err)
			continue
		}
		docs = append(docs, Document{
			URI:         fetched.URL,
			Content:     fetched.Content,
			ContentType: "text/markdown",
			Metadata: map[string]string{
				"path":       fetched.Path,
				"repository": s.fetcher.Repository(),
				"sha":        fetched.SHA,
				"commit":     commitSHA,
			},
		})
	}

	if len(paths) > 0 && len(docs) == 0 {
		return nil, &FetchError{URI: s.uri, Err: fmt.Errorf("all %d documents failed", len(paths))}
	}
	return docs, nil
}

func parseGitHubURI(uri string) (owner, repo, basePath string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("parse %s: %w", uri, err)
	}
	if u.Scheme != "github" || u.Host == "" {
		return "", "", "", fmt.Errorf("not a github:// uri: %s", uri)
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return "", "", "", fmt.Errorf("missing repository in %s", uri)
	}
	if len(parts) == 2 {
		basePath = parts[1]
	}
	return u.Host, parts[0], basePath, nil
}
