// Package chunker splits normalized text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"unicode/utf8"

	"github.com/bull/ragchat/internal/markdown"
)

// Defaults used when the configuration leaves chunking unset.
const (
	DefaultMaxSize = 1000
	DefaultOverlap = 200
)

// ErrInvalidWindow is returned by New for a window that cannot advance.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Chunk is one window over a document. Start and End are rune offsets into
// the normalized text; the first Overlap runes repeat the previous chunk.
type Chunk struct {
	SourceURI  string
	Index      int
	Text       string
	Start      int
	End        int
	Overlap    int
	HeaderPath string // Markdown section the chunk starts in, may be empty
}

// Chunker produces chunks of at most MaxSize runes, each sharing Overlap
// runes with its predecessor.
type Chunker struct {
	maxSize int
	overlap int
	outline *markdown.Parser
}

// New creates a Chunker. It rejects maxSize <= 0, a negative overlap and
// overlap >= maxSize.
func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size %d must be positive", ErrInvalidWindow, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidWindow, overlap, maxSize)
	}
	return &Chunker{
		maxSize: maxSize,
		overlap: overlap,
		outline: markdown.NewParser(0),
	}, nil
}

// MaxSize returns the window size in runes.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns a lazy sequence over text. Every range over the sequence
// walks the text again from the start. Empty text yields nothing.
func (c *Chunker) Chunks(text, sourceURI string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if text == "" {
			return
		}

		// offsets[i] is the byte offset of rune i; the final entry is len(text).
		offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
		for i := range text {
			offsets = append(offsets, i)
		}
		offsets = append(offsets, len(text))
		n := len(offsets) - 1

		// A document that fails to parse simply gets no header paths.
		outline, err := c.outline.Parse([]byte(text))
		if err != nil {
			outline = nil
		}

		step := c.maxSize - c.overlap
		prevEnd := 0
		for index, start := 0, 0; ; index, start = index+1, start+step {
			end := min(start+c.maxSize, n)
			chunk := Chunk{
				SourceURI:  sourceURI,
				Index:      index,
				Text:       text[offsets[start]:offsets[end]],
				Start:      start,
				End:        end,
				Overlap:    max(prevEnd-start, 0),
				HeaderPath: outline.HeaderPath(offsets[start]),
			}
			if !yield(chunk) {
				return
			}
			if end == n {
				return
			}
			prevEnd = end
		}
	}
}

// Split collects every chunk of text.
func (c *Chunker) Split(text, sourceURI string) []Chunk {
	var chunks []Chunk
	for chunk := range c.Chunks(text, sourceURI) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Reconstruct joins chunks back into the text they were cut from by
// dropping each chunk's overlapping prefix.
func Reconstruct(chunks []Chunk) string {
	var out []byte
	for _, chunk := range chunks {
		skip := 0
		for i := 0; i < chunk.Overlap && skip < len(chunk.Text); i++ {
			_, size := utf8.DecodeRuneInString(chunk.Text[skip:])
			skip += size
		}
		out = append(out, chunk.Text[skip:]...)
	}
	return string(out)
}
