package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"openworker/internal/logging"
	"openworker/internal/metrics"
)

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Reranker scores documents against a query through a /rerank endpoint
// (Cohere, Jina and TEI-compatible servers share this shape).
type Reranker struct {
	api    openai.Client
	model  string
	opts   []option.RequestOption
	logger *slog.Logger
}

func NewReranker(api openai.Client, model string, logger *slog.Logger, opts ...option.RequestOption) *Reranker {
	return &Reranker{api: api, model: model, opts: opts, logger: logging.OrDiscard(logger)}
}

// Rerank returns one score per document, aligned with docs. Documents the
// server leaves out of its results score zero.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	start := time.Now()
	var resp rerankResponse
	err := r.api.Post(ctx, "rerank", rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: docs,
		TopN:      len(docs),
	}, &resp, r.opts...)
	metrics.LLMCalls.WithLabelValues("rerank", metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	scores := make([]float64, len(docs))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, fmt.Errorf("rerank: result index %d out of range", res.Index)
		}
		scores[res.Index] = res.RelevanceScore
	}
	r.logger.Debug("llm.rerank", "model", r.model, "docs", len(docs),
		"duration_ms", time.Since(start).Milliseconds())
	return scores, nil
}
