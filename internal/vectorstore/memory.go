package vectorstore

import (
	"context"
	"sync"

	"github.com/testforge/docforge/internal/domain"
)

// MemoryStore keeps entries in process memory. It backs tests and
// ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]struct{}
	dim     int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]struct{})}
}

func (s *MemoryStore) Add(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := checkBatch(entries, s.dim)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if _, ok := s.index[e.ID]; ok {
			return 0, domain.ErrDuplicateEntry(e.ID)
		}
	}

	for _, e := range entries {
		e.Embedding = append([]float32(nil), e.Embedding...)
		s.entries = append(s.entries, e)
		s.index[e.ID] = struct{}{}
	}
	s.dim = dim
	return len(entries), nil
}

func (s *MemoryStore) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(embedding) != s.dim {
		return nil, domain.ErrEmbeddingMismatch(s.dim, len(embedding))
	}

	candidates := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Match(e.Metadata) {
			candidates = append(candidates, e)
		}
	}
	return rank(embedding, candidates, k)
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.index = make(map[string]struct{})
	s.dim = 0
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) LastChunkNumber(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ID
	}
	return maxChunkNumber(ids), nil
}

func (s *MemoryStore) Backend() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
