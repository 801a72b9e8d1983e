// Package markdown maps positions in a markdown document to the section headers they fall under.
package markdown

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// DefaultMaxDepth is the deepest heading level that opens a new section.
const DefaultMaxDepth = 3

// Section is a heading and the byte offset of the line it starts on.
type Section struct {
	Offset     int
	Level      int
	HeaderPath string // "# Doc Title > ## Section Name"
}

// Outline is the ordered list of sections in a document.
type Outline struct {
	sections []Section
}

// Parser builds outlines with a goldmark parser configured for heading IDs.
type Parser struct {
	md       goldmark.Markdown
	maxDepth int
}

// NewParser creates an outline parser. maxDepth <= 0 uses DefaultMaxDepth.
func NewParser(maxDepth int) *Parser {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Parser{md: md, maxDepth: maxDepth}
}

// Parse builds the outline of source. A document without headings has an empty outline.
func (p *Parser) Parse(source []byte) (*Outline, error) {
	doc := p.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(p.maxDepth),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	headings := collectHeadings(doc)
	o := &Outline{}
	o.collect(tree.Items, nil, headings, source)
	sort.SliceStable(o.sections, func(i, j int) bool {
		return o.sections[i].Offset < o.sections[j].Offset
	})
	return o, nil
}

// Sections returns the sections in document order.
func (o *Outline) Sections() []Section {
	return o.sections
}

// HeaderPath returns the path of the section containing byteOffset, or ""
// when the offset precedes the first heading.
func (o *Outline) HeaderPath(byteOffset int) string {
	if o == nil || len(o.sections) == 0 {
		return ""
	}
	i := sort.Search(len(o.sections), func(i int) bool {
		return o.sections[i].Offset > byteOffset
	})
	if i == 0 {
		return ""
	}
	return o.sections[i-1].HeaderPath
}

// collect walks TOC items depth first, resolving each to its heading node.
func (o *Outline) collect(items toc.Items, ancestors []string, headings map[string]*ast.Heading, source []byte) {
	for _, item := range items {
		// Compacted TOCs may contain untitled placeholder levels.
		current := ancestors
		if len(item.Title) > 0 {
			current = append(append([]string(nil), ancestors...), string(item.Title))

			if heading, ok := headings[string(item.ID)]; ok && heading.Lines().Len() > 0 {
				o.sections = append(o.sections, Section{
					Offset:     lineStart(source, heading.Lines().At(0).Start),
					Level:      heading.Level,
					HeaderPath: formatHeaderPath(current),
				})
			}
		}

		if len(item.Items) > 0 {
			o.collect(item.Items, current, headings, source)
		}
	}
}

// collectHeadings indexes heading nodes by their auto-generated ID.
func collectHeadings(doc ast.Node) map[string]*ast.Heading {
	headings := make(map[string]*ast.Heading)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		heading := n.(*ast.Heading)
		if id, ok := heading.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				headings[string(b)] = heading
			}
		}
		return ast.WalkContinue, nil
	})
	return headings
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

func lineStart(source []byte, offset int) int {
	for offset > 0 && source[offset-1] != '\n' {
		offset--
	}
	return offset
}
