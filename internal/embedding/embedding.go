// Package embedding turns text into fixed-dimension vectors for similarity
// search.
package embedding

import (
	"context"
	"fmt"
)

// Embedder generates embeddings. Implementations return exactly one vector
// per input text, in input order, all of the same dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the embedding space. Vectors from different models
	// must never be compared.
	Model() string
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}
