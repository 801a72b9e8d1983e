// Package loader fetches raw documents from the configured sources.
package loader

import (
	"errors"
	"fmt"
)

// ErrSourceFetch marks a source that could not be fetched. Indexing skips it.
var ErrSourceFetch = errors.New("source fetch failed")

// Document is a raw document as fetched from its source.
type Document struct {
	URI         string            // Source identifier
	Content     string            // Raw markup or text
	ContentType string            // MIME type without parameters, e.g. "text/html"
	Metadata    map[string]string // Source-specific extras (title, sha, status)
}

// FetchError records which URI failed and why.
type FetchError struct {
	URI string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URI, e.Err)
}

// Unwrap exposes both ErrSourceFetch and the underlying cause to errors.Is.
func (e *FetchError) Unwrap() []error {
	return []error{ErrSourceFetch, e.Err}
}
