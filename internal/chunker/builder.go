package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/testforge/docforge/internal/domain"
)

// Builder turns normalized documents into chunks for one knowledge-base
// build. Its counter runs across every document of the build so chunk IDs
// never collide. A Builder is not safe for concurrent use.
type Builder struct {
	splitter *Splitter
	counter  int
}

// NewBuilder creates a builder whose first chunk is numbered start+1. Callers
// appending to a non-empty store pass the highest counter already stored.
func NewBuilder(splitter *Splitter, start int) *Builder {
	if splitter == nil {
		splitter = NewSplitter()
	}
	if start < 0 {
		start = 0
	}
	return &Builder{splitter: splitter, counter: start}
}

// Chunk splits text and attaches provenance. Chunk IDs are
// "{source stem}_{counter}".
func (b *Builder) Chunk(text, source string, docType domain.DocType) []domain.Chunk {
	pieces := b.splitter.Split(text)
	stem := Stem(source)

	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		b.counter++
		c := domain.Chunk{
			ChunkID:        fmt.Sprintf("%s_%d", stem, b.counter),
			Text:           piece,
			SourceDocument: source,
			DocType:        docType,
			ChunkIndex:     i,
		}
		if docType == domain.DocTypeHTMLDOM {
			c.HasSelectors = strings.Contains(piece, "SELECTOR") ||
				strings.Contains(piece, "#") ||
				strings.Contains(piece, "class=")
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// Counter returns the number of the last chunk issued.
func (b *Builder) Counter() int {
	return b.counter
}

// Stem returns the filename without directory and final extension.
func Stem(source string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}
