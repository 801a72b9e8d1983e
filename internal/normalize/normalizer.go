// Package normalize converts fetched markup into plain markdown text for chunking.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/bull/ragchat/internal/loader"
)

// ErrNormalization marks content that could not be converted. The document is
// still returned with its raw content, so callers may log and continue.
var ErrNormalization = errors.New("normalization failed")

// ContentTypeMarkdown is the content type of every converted document.
const ContentTypeMarkdown = "text/markdown"

// chromeTags are page furniture that never carries article text.
var chromeTags = []string{"nav", "footer", "form", "button", "svg", "template"}

// Normalizer turns HTML documents into markdown and leaves text as is.
type Normalizer struct {
	conv   *converter.Converter
	logger *slog.Logger
}

// New creates a Normalizer. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{conv: newConverter(), logger: logger}
}

func newConverter() *converter.Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithListEndComment(false),
			),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
	for _, tag := range chromeTags {
		conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityStandard)
	}
	return conv
}

// Normalize converts doc to markdown when it carries HTML. Plain text and
// markdown are returned unchanged. On failure the raw document is returned
// together with an error wrapping ErrNormalization.
func (n *Normalizer) Normalize(doc loader.Document) (loader.Document, error) {
	if !isHTML(doc) {
		return doc, nil
	}

	root, err := html.Parse(strings.NewReader(doc.Content))
	if err != nil {
		return doc, fmt.Errorf("%w: %s: %v", ErrNormalization, doc.URI, err)
	}

	// The converter drops <head>, so read the title first.
	title := findTitle(root)
	md, err := n.conv.ConvertNode(root)
	if err != nil {
		return doc, fmt.Errorf("%w: %s: %v", ErrNormalization, doc.URI, err)
	}
	text := cleanup(string(md))
	if text == "" && strings.TrimSpace(doc.Content) != "" {
		return doc, fmt.Errorf("%w: %s: no readable text", ErrNormalization, doc.URI)
	}

	out := doc
	out.Content = text
	out.ContentType = ContentTypeMarkdown
	out.Metadata = copyMetadata(doc.Metadata)
	if title != "" {
		out.Metadata["title"] = title
	}
	n.logger.Debug("Normalized document", "uri", doc.URI, "raw_bytes", len(doc.Content), "text_bytes", len(text))
	return out, nil
}

// NormalizeAll normalizes every document, falling back to raw content for
// those that fail.
func (n *Normalizer) NormalizeAll(docs []loader.Document) []loader.Document {
	out := make([]loader.Document, len(docs))
	for i, doc := range docs {
		normalized, err := n.Normalize(doc)
		if err != nil {
			n.logger.Warn("Normalization failed, using raw content", "uri", doc.URI, "error", err)
		}
		out[i] = normalized
	}
	return out
}

func isHTML(doc loader.Document) bool {
	ct := doc.ContentType
	if ct == "" {
		ct = http.DetectContentType([]byte(doc.Content))
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = ct
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// cleanup trims trailing blanks from every line and collapses runs of blank lines.
func cleanup(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
