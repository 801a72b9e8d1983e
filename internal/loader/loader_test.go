package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	uri  string
	docs []Document
	err  error
}

func (s *stubSource) URI() string { return s.uri }

func (s *stubSource) Fetch(context.Context) ([]Document, error) {
	return s.docs, s.err
}

func TestLoader_SkipsFailedSources(t *testing.T) {
	sources := []Source{
		&stubSource{uri: "https://a.example", docs: []Document{{URI: "https://a.example", Content: "a"}}},
		&stubSource{uri: "https://down.example", err: &FetchError{URI: "https://down.example", Err: errors.New("connection refused")}},
		&stubSource{uri: "https://b.example", docs: []Document{{URI: "https://b.example", Content: "b"}}},
	}

	docs, failed := New(sources, nil).Load(context.Background())

	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Content)
	assert.Equal(t, "b", docs[1].Content)

	require.Len(t, failed, 1)
	assert.Equal(t, "https://down.example", failed[0].URI)
	assert.Contains(t, failed[0].Reason, "connection refused")
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprint(w, "<html><body><p>MongoDB is a NoSQL database.</p></body></html>")
	}))
	defer srv.Close()

	docs, err := NewHTTPSource(srv.URL+"/wiki/MongoDB", srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, srv.URL+"/wiki/MongoDB", docs[0].URI)
	assert.Equal(t, "text/html", docs[0].ContentType)
	assert.Contains(t, docs[0].Content, "NoSQL")
}

func TestHTTPSource_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceFetch)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, srv.URL, fetchErr.URI)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load(), "4xx responses are not retried")
}

func TestHTTPSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "recovered")
	}))
	defer srv.Close()

	docs, err := NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovered", docs[0].Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFromURIs(t *testing.T) {
	l, err := FromURIs([]string{
		"https://en.wikipedia.org/wiki/MongoDB",
		"github://cloudwego/cloudwego.github.io/content/en/docs/eino",
	}, Options{})
	require.NoError(t, err)
	require.Len(t, l.sources, 2)
	assert.IsType(t, &HTTPSource{}, l.sources[0])
	assert.IsType(t, &GitHubSource{}, l.sources[1])

	_, err = FromURIs([]string{"ftp://example.com/file"}, Options{})
	assert.Error(t, err)
}

func TestParseGitHubURI(t *testing.T) {
	owner, repo, base, err := parseGitHubURI("github://cloudwego/cloudwego.github.io/content/en/docs/eino")
	require.NoError(t, err)
	assert.Equal(t, "cloudwego", owner)
	assert.Equal(t, "cloudwego.github.io", repo)
	assert.Equal(t, "content/en/docs/eino", base)

	_, repo, base, err = parseGitHubURI("github://owner/repo")
	require.NoError(t, err)
	assert.Equal(t, "repo", repo)
	assert.Empty(t, base)

	_, _, _, err = parseGitHubURI("github://owner")
	assert.Error(t, err)
	_, _, _, err = parseGitHubURI("https://github.com/owner/repo")
	assert.Error(t, err)
}
