package rag

import (
	"context"
	"errors"
	"fmt"
)

// EmbeddingReranker scores documents by cosine similarity between their
// embeddings and the query embedding. It stands in when no dedicated
// rerank endpoint is configured.
type EmbeddingReranker struct {
	Embedder Embedder
}

func (r EmbeddingReranker) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if r.Embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	if len(docs) == 0 {
		return nil, nil
	}

	vecs, err := r.Embedder.Embed(ctx, append([]string{query}, docs...))
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(docs)+1 {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(vecs), len(docs)+1)
	}

	scores := make([]float64, len(docs))
	for i := range docs {
		scores[i] = cosineSimilarity(vecs[0], vecs[i+1])
	}
	return scores, nil
}
