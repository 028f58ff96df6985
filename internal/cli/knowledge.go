package cli

import (
	"context"
	"fmt"

	"openworker/internal/llm"
	"openworker/internal/rag"
)

// openKnowledge opens the vector database and builds the retrieval store over
// it. The caller closes the returned VectorStore.
func openKnowledge(ctx context.Context, rt *app) (*rag.Store, *rag.VectorStore, error) {
	cfg := rt.cfg

	vectors, err := rag.OpenVectorStore(cfg.VectorDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open vector store: %w", err)
	}

	embedAPI := llm.NewAPI(cfg.Embedding.BaseURL, cfg.Embedding.APIKey)
	embedder := llm.NewEmbedder(embedAPI, cfg.Embedding.Model, cfg.Embedding.RequestsPerSecond, rt.logger)

	// A nil reranker makes the store fall back to embedding similarity.
	var reranker rag.Reranker
	if cfg.Rerank.BaseURL != "" {
		rerankAPI := llm.NewAPI(cfg.Rerank.BaseURL, cfg.Rerank.APIKey)
		reranker = llm.NewReranker(rerankAPI, cfg.Rerank.Model, rt.logger)
	}

	store, err := rag.NewStore(ctx, vectors, embedder, reranker, rt.folders(), rag.Options{
		Splitter:   rag.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		Candidates: cfg.RAG.Candidates,
		TopK:       cfg.RAG.TopK,
		Logger:     rt.logger,
	})
	if err != nil {
		_ = vectors.Close()
		return nil, nil, fmt.Errorf("load index: %w", err)
	}
	return store, vectors, nil
}
