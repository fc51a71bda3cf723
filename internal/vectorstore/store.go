// Package vectorstore persists chunk embeddings with their metadata and
// answers nearest-neighbor queries by cosine distance.
package vectorstore

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/viant/sqlite-vec/vector"

	"github.com/testforge/docforge/internal/domain"
)

// Metadata is stored next to every embedding.
type Metadata struct {
	SourceDocument string         `json:"source_document" db:"source_document"`
	DocType        domain.DocType `json:"doc_type" db:"doc_type"`
	ChunkIndex     int            `json:"chunk_index" db:"chunk_index"`
}

// Entry is an embedded chunk. Entries are immutable once written; only a
// whole-store Reset removes them.
type Entry struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Text      string    `json:"text"`
	Metadata  Metadata  `json:"metadata"`
}

// EntryFromChunk pairs a chunk with its embedding.
func EntryFromChunk(c domain.Chunk, embedding []float32) Entry {
	return Entry{
		ID:        c.ChunkID,
		Embedding: embedding,
		Text:      c.Text,
		Metadata: Metadata{
			SourceDocument: c.SourceDocument,
			DocType:        c.DocType,
			ChunkIndex:     c.ChunkIndex,
		},
	}
}

// Result is one ranked match. Smaller Distance means more relevant.
type Result struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// Filter restricts a query by exact metadata match. Zero fields match
// everything.
type Filter struct {
	DocType        domain.DocType `json:"doc_type,omitempty"`
	SourceDocument string         `json:"source_document,omitempty"`
}

// Match reports whether m satisfies the filter.
func (f Filter) Match(m Metadata) bool {
	if f.DocType != "" && m.DocType != f.DocType {
		return false
	}
	if f.SourceDocument != "" && m.SourceDocument != f.SourceDocument {
		return false
	}
	return true
}

// IsZero reports whether the filter has no constraint.
func (f Filter) IsZero() bool {
	return f.DocType == "" && f.SourceDocument == ""
}

// Store is a vector index over chunk entries.
type Store interface {
	// Add writes entries and returns how many were stored. Empty input
	// stores nothing and is not an error. IDs already present are rejected
	// with a DUPLICATE_ENTRY error.
	Add(ctx context.Context, entries []Entry) (int, error)

	// Query returns up to k entries ordered by ascending cosine distance.
	// A query whose dimension differs from the stored vectors fails with
	// EMBEDDING_MISMATCH.
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Result, error)

	// Reset removes every entry. Resetting an empty store succeeds.
	Reset(ctx context.Context) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// LastChunkNumber returns the highest chunk counter among stored IDs,
	// 0 for an empty store. Builds number new chunks above it, so IDs stay
	// unique even when an earlier build skipped numbers.
	LastChunkNumber(ctx context.Context) (int, error)

	// Backend names the implementation.
	Backend() string

	Close() error
}

// ChunkNumber parses the counter suffix of a "{stem}_{n}" chunk ID.
func ChunkNumber(id string) (int, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 || i == len(id)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func maxChunkNumber(ids []string) int {
	last := 0
	for _, id := range ids {
		if n, ok := ChunkNumber(id); ok && n > last {
			last = n
		}
	}
	return last
}

// CosineDistance returns 1 - cosine similarity. An empty or zero-magnitude
// vector has no direction and sits at distance 1 from everything.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.ErrEmbeddingMismatch(len(b), len(a))
	}
	sim, err := vector.CosineSimilarity(a, b)
	if err != nil {
		return 1, nil
	}
	return 1 - sim, nil
}

// rank scores candidates against query and keeps the k closest. Candidates
// must be in insertion order; equal distances keep that order.
func rank(query []float32, candidates []Entry, k int) ([]Result, error) {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		d, err := CosineDistance(query, c.Embedding)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{ID: c.ID, Text: c.Text, Metadata: c.Metadata, Distance: d})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// checkBatch rejects duplicate IDs inside one Add call and vectors whose
// dimension differs from dim. A dim of 0 adopts the first entry's dimension.
func checkBatch(entries []Entry, dim int) (int, error) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.ID]; ok {
			return 0, domain.ErrDuplicateEntry(e.ID)
		}
		seen[e.ID] = struct{}{}

		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			return 0, domain.ErrEmbeddingMismatch(dim, len(e.Embedding))
		}
	}
	return dim, nil
}
