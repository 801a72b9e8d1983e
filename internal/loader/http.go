package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultUserAgent identifies the loader; Wikipedia rejects requests without one.
const DefaultUserAgent = "ragchat/0.1 (+https://github.com/bull/ragchat)"

// maxBodyBytes caps a single fetched page.
const maxBodyBytes = 20 << 20

// HTTPSource fetches a single document over HTTP(S).
type HTTPSource struct {
	uri       string
	client    *http.Client
	userAgent string
}

// NewHTTPSource creates a source for uri. A nil client uses a 30s-timeout default.
func NewHTTPSource(uri string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{uri: uri, client: client, userAgent: DefaultUserAgent}
}

// URI returns the address this source fetches.
func (s *HTTPSource) URI() string { return s.uri }

// Fetch downloads the document, retrying transient failures (network errors,
// 429 and 5xx) with exponential backoff. Other 4xx responses fail immediately.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Document, error) {
	var doc Document

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.uri, http.NoBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		doc = Document{
			URI:         s.uri,
			Content:     string(body),
			ContentType: mediaType(resp.Header.Get("Content-Type")),
			Metadata: map[string]string{
				"status": resp.Status,
			},
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, &FetchError{URI: s.uri, Err: err}
	}
	return []Document{doc}, nil
}

// mediaType strips parameters such as charset from a Content-Type header.
func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return header
	}
	return mt
}
