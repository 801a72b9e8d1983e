package loader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bull/ragchat/internal/github"
)

// Source yields one or more raw documents.
type Source interface {
	URI() string
	Fetch(ctx context.Context) ([]Document, error)
}

// FailedSource is a source that was skipped during loading.
type FailedSource struct {
	URI    string
	Reason string
}

// Loader fetches every configured source in order.
type Loader struct {
	sources []Source
	logger  *slog.Logger
}

// New creates a loader over already constructed sources.
func New(sources []Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{sources: sources, logger: logger}
}

// Options controls how FromURIs builds sources.
type Options struct {
	HTTPClient  *http.Client
	GitHubToken string
	Logger      *slog.Logger
}

// FromURIs builds a loader for http(s):// and github:// URIs.
func FromURIs(uris []string, opts Options) (*Loader, error) {
	var (
		sources  []Source
		ghClient *github.Client
	)
	for _, uri := range uris {
		switch {
		case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
			sources = append(sources, NewHTTPSource(uri, opts.HTTPClient))
		case strings.HasPrefix(uri, "github://"):
			if ghClient == nil {
				c, err := github.NewClient(opts.GitHubToken)
				if err != nil {
					return nil, fmt.Errorf("create github client: %w", err)
				}
				ghClient = c
			}
			src, err := NewGitHubSource(uri, ghClient, opts.Logger)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		default:
			return nil, fmt.Errorf("unsupported source %q", uri)
		}
	}
	return New(sources, opts.Logger), nil
}

// Load fetches all sources. A failing source is logged, reported in the
// returned failures and skipped; the remaining sources are still fetched.
func (l *Loader) Load(ctx context.Context) ([]Document, []FailedSource) {
	var (
		docs   []Document
		failed []FailedSource
	)
	for _, src := range l.sources {
		if err := ctx.Err(); err != nil {
			failed = append(failed, FailedSource{URI: src.URI(), Reason: err.Error()})
			continue
		}
		fetched, err := src.Fetch(ctx)
		if err != nil {
			l.logger.Warn("Skipping source", "uri", src.URI(), "error", err)
			failed = append(failed, FailedSource{URI: src.URI(), Reason: err.Error()})
			continue
		}
		l.logger.Debug("Fetched source", "uri", src.URI(), "documents", len(fetched))
		docs = append(docs, fetched...)
	}
	return docs, failed
}
