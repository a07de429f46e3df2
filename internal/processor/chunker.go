// Package processor runs the staged document pipeline: validation,
// extraction, chunking, persistence, finalization.
package processor

import "strings"

// Chunker splits extracted text into fixed windows with overlap, preferring
// to break at paragraph, sentence, or word boundaries found in the tail of
// each window.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker builds a Chunker. Size must exceed overlap; callers validate
// that through config.
func NewChunker(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

// Split cuts text into chunks of at most the configured size. Consecutive
// chunks share the trailing overlap of their predecessor, so dropping the
// first overlap bytes of every chunk after the first reconstructs the text.
// Empty input yields no chunks; no returned chunk is empty.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		cut := c.boundary(text, start, end)
		chunks = append(chunks, text[start:cut])
		next := cut - c.overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// boundary picks the cut position for a window, scanning the last 30% for a
// paragraph break, then a sentence end, then a space. Falls back to the hard
// window edge.
func (c *Chunker) boundary(text string, start, end int) int {
	tail := start + (c.size*7)/10
	window := text[tail:end]

	for _, sep := range []string{"\n\n", ". ", "! ", "? ", "\n", " "} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return tail + i + len(sep)
		}
	}
	return end
}
